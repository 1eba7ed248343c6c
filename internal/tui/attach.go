package tui

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"wolfie/pkg/chat"
)

// localAttachment turns a path typed after /attach into an attachment.
// A leading ~ expands to the home directory.
func localAttachment(path string) (chat.Attachment, error) {
	path = strings.Trim(path, `"'`)
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return chat.Attachment{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("attach: %w", err)
	}
	if info.IsDir() {
		return chat.Attachment{}, fmt.Errorf("attach: %s is a directory", path)
	}
	return chat.Attachment{
		URL:       abs,
		Filename:  filepath.Base(abs),
		MediaType: mediaTypeFor(abs),
	}, nil
}

func mediaTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt", "":
		return "text/plain"
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	}
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		if base, _, err := mime.ParseMediaType(mt); err == nil {
			return base
		}
		return mt
	}
	return "application/octet-stream"
}
