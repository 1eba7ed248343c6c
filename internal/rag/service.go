package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"wolfie/pkg/logger"
	"wolfie/pkg/telemetry"
)

// NoContextAnswer is returned when nothing has been ingested yet.
const NoContextAnswer = "I don't have enough information to answer this question."

const sourcePreviewRunes = 200

var (
	ErrEmptyFile     = errors.New("Empty file")
	ErrEmptyQuestion = errors.New("Question cannot be empty")
	ErrNoChunks      = errors.New("No chunks generated from document")
	ErrInvalidDocID  = errors.New("invalid doc_id")
	ErrNoSourceDir   = errors.New("source directory not found")
)

// TooLargeError reports an upload over the size limit.
type TooLargeError struct {
	Size, Max int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("File too large: %s (max %s)", humanize.IBytes(uint64(e.Size)), humanize.IBytes(uint64(e.Max)))
}

// UnsupportedTypeError reports a content type the service cannot parse.
type UnsupportedTypeError struct {
	MediaType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("File type %s not supported", e.MediaType)
}

// Source is one chunk an answer was grounded on, trimmed for display.
type Source struct {
	DocID      string  `json:"doc_id"`
	ChunkID    int     `json:"chunk_id"`
	Content    string  `json:"content"`
	Similarity float32 `json:"similarity"`
}

// FolderResult is the outcome for one file of a folder ingestion.
type FolderResult struct {
	Filename      string `json:"filename"`
	DocID         string `json:"doc_id,omitempty"`
	Status        string `json:"status"`
	ChunksCreated int    `json:"chunks_created,omitempty"`
	Error         string `json:"error,omitempty"`
}

// SourceFile describes a file waiting in the source folder.
type SourceFile struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Size      string `json:"size"`
	Extension string `json:"extension"`
}

// Service ingests documents and answers questions.
type Service struct {
	cfg   Config
	store *VectorStore
	gen   Generator

	// ingestion replaces a document's chunks in two steps
	ingestMu sync.Mutex
}

// NewService wires a store and a generator.
func NewService(cfg Config, store *VectorStore, gen Generator) *Service {
	cfg.applyDefaults()
	return &Service{cfg: cfg, store: store, gen: gen}
}

// Open builds the service from cfg: data directories, the persistent
// vector store and the Anthropic generator.
func Open(cfg Config) (*Service, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	embed, err := NewEmbeddingFunc(cfg)
	if err != nil {
		return nil, err
	}
	store, err := OpenVectorStore(cfg.VectorDir, embed)
	if err != nil {
		return nil, err
	}
	gen, err := NewAnthropicGenerator(cfg)
	if err != nil {
		return nil, err
	}
	return NewService(cfg, store, gen), nil
}

func (s *Service) Config() Config { return s.cfg }

// CheckUpload validates an upload before it is ingested.
func (s *Service) CheckUpload(mediaType string, size int64) error {
	if !s.cfg.typeAllowed(mediaType) {
		return &UnsupportedTypeError{MediaType: mediaType}
	}
	if size == 0 {
		return ErrEmptyFile
	}
	if size > s.cfg.MaxFileSize {
		return &TooLargeError{Size: size, Max: s.cfg.MaxFileSize}
	}
	return nil
}

func validDocID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// Ingest stores data as docID, reading it by the filename's extension.
// When save is set the upload is also kept under the uploads directory.
// Existing chunks of docID are replaced.
func (s *Service) Ingest(ctx context.Context, docID, filename string, data []byte, save bool) (int, error) {
	return s.IngestUpload(ctx, docID, filename, MediaTypeOf(filename), data, save)
}

// IngestUpload is Ingest with the media type the client declared.
func (s *Service) IngestUpload(ctx context.Context, docID, filename, mediaType string, data []byte, save bool) (int, error) {
	tr := telemetry.Track("rag.ingest")
	defer tr.Finish()
	start := time.Now()

	docID = strings.TrimSpace(docID)
	if !validDocID(docID) {
		return 0, ErrInvalidDocID
	}
	if len(data) == 0 {
		return 0, ErrEmptyFile
	}
	filename = filepath.Base(filename)

	if save {
		path := filepath.Join(s.cfg.UploadDir, docID+"_"+filename)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return 0, fmt.Errorf("save upload: %w", err)
		}
		logger.Info("upload_saved", "path", path)
	}

	tr.Mark("extract")
	text, err := extractText(mediaType, data)
	if err != nil {
		return 0, err
	}
	chunks, err := Chunk(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, ErrNoChunks
	}

	tr.Mark("embed_store")
	s.ingestMu.Lock()
	err = s.store.Replace(ctx, docID, filename, chunks)
	s.ingestMu.Unlock()
	if err != nil {
		ingestTotal.WithLabelValues("error").Inc()
		return 0, err
	}
	ingestTotal.WithLabelValues("ok").Inc()
	chunksTotal.Add(float64(len(chunks)))
	logger.Info("document_ingested", "doc_id", docID, "filename", filename, "chunks", len(chunks),
		"size", humanize.IBytes(uint64(len(data))), "elapsed", time.Since(start).String())
	return len(chunks), nil
}
