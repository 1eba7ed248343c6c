package rag

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	MediaPDF  = "application/pdf"
	MediaDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaPPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
)

// maxExtractedBytes bounds the XML read out of one office document.
const maxExtractedBytes = 64 << 20

// MediaTypeOf maps a filename extension to the media type ingestion keys on.
func MediaTypeOf(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return MediaPDF
	case ".docx":
		return MediaDOCX
	case ".pptx":
		return MediaPPTX
	case ".md", ".markdown":
		return "text/markdown"
	default:
		return "text/plain"
	}
}

// extractText turns an upload into plain text according to its media type.
// Anything not a PDF or an office document must be UTF-8 text.
func extractText(mediaType string, data []byte) (string, error) {
	switch strings.ToLower(mediaType) {
	case MediaPDF:
		return extractPDF(data)
	case MediaDOCX:
		return extractOffice(data, func(name string) bool { return name == "word/document.xml" })
	case MediaPPTX:
		return extractOffice(data, isSlide)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return "", fmt.Errorf("document is not valid UTF-8 text")
	}
	return string(data), nil
}

func extractPDF(data []byte) (text string, err error) {
	// the reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(b), nil
}

// isSlide matches ppt/slides/slideN.xml, leaving out layouts and masters.
func isSlide(name string) bool {
	_, ok := slideNumber(name)
	return ok
}

func slideNumber(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "ppt/slides/slide")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(rest, ".xml"))
	if err != nil || !strings.HasSuffix(rest, ".xml") {
		return 0, false
	}
	return n, true
}

// extractOffice reads the text runs of the matching parts of an OOXML
// package. Slides are read in slide order.
func extractOffice(data []byte, match func(string) bool) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read office document: %w", err)
	}
	var parts []*zip.File
	for _, f := range zr.File {
		if match(f.Name) {
			parts = append(parts, f)
		}
	}
	if len(parts) == 0 {
		return "", errors.New("office document has no text parts")
	}
	sort.SliceStable(parts, func(i, j int) bool {
		a, _ := slideNumber(parts[i].Name)
		b, _ := slideNumber(parts[j].Name)
		return a < b
	})

	var sb strings.Builder
	budget := int64(maxExtractedBytes)
	for _, f := range parts {
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", f.Name, err)
		}
		lr := &io.LimitedReader{R: rc, N: budget + 1}
		err = xmlText(lr, &sb)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", f.Name, err)
		}
		budget = lr.N - 1
		if budget < 0 {
			return "", errors.New("office document text is too large")
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// xmlText collects the character data of <t> elements, ending a line at
// each </p> and honoring <tab/> and <br/>. WordprocessingML (w:) and
// DrawingML (a:) share these local names.
func xmlText(r io.Reader, sb *strings.Builder) error {
	dec := xml.NewDecoder(r)
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteString("\t")
			case "br":
				sb.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
}
