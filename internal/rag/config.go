// Package rag is the retrieval-augmented generation service: it ingests
// PDF, Word, PowerPoint and text documents into a chromem vector store and answers questions from
// the most similar chunks with an Anthropic model.
package rag

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every service variable.
const EnvPrefix = "WOLFIE_RAG_"

// Config is read from WOLFIE_RAG_* variables.
type Config struct {
	Addr        string   `env:"ADDR" envDefault:":8000"`
	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`

	DataDir   string `env:"DATA_DIR" envDefault:"./data"`
	UploadDir string `env:"UPLOAD_DIR"`
	SourceDir string `env:"SOURCE_DIR"`
	VectorDir string `env:"VECTOR_DIR"`
	// Watch re-ingests files created or rewritten in SourceDir.
	Watch bool `env:"WATCH" envDefault:"false"`

	ChunkSize    int   `env:"CHUNK_SIZE" envDefault:"1000"`
	ChunkOverlap int   `env:"CHUNK_OVERLAP" envDefault:"200"`
	TopK         int   `env:"TOP_K" envDefault:"10"`
	MaxFileSize  int64 `env:"MAX_FILE_SIZE" envDefault:"10485760"`

	AllowedTypes      []string `env:"ALLOWED_TYPES" envDefault:"application/pdf,application/vnd.openxmlformats-officedocument.wordprocessingml.document,application/vnd.openxmlformats-officedocument.presentationml.presentation,text/plain,text/markdown" envSeparator:","`
	AllowedExtensions []string `env:"ALLOWED_EXTENSIONS" envDefault:".pdf,.docx,.pptx,.txt,.md,.markdown" envSeparator:","`

	// EmbeddingProvider is one of openai, ollama or openai-compat.
	EmbeddingProvider string `env:"EMBEDDING_PROVIDER" envDefault:"openai"`
	EmbeddingModel    string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingBaseURL  string `env:"EMBEDDING_BASE_URL"`
	EmbeddingAPIKey   string `env:"EMBEDDING_API_KEY"`

	AnthropicAPIKey string        `env:"ANTHROPIC_API_KEY"`
	ChatModel       string        `env:"CHAT_MODEL" envDefault:"claude-sonnet-4-5-20250929"`
	MaxTokens       int64         `env:"MAX_TOKENS" envDefault:"1024"`
	Temperature     float64       `env:"TEMPERATURE" envDefault:"0.7"`
	GenerateTimeout time.Duration `env:"GENERATE_TIMEOUT" envDefault:"90s"`
}

// LoadConfig parses the environment and fills derived paths. The provider
// keys fall back to the unprefixed variables their SDKs use.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: EnvPrefix})
	if err != nil {
		return Config{}, fmt.Errorf("parse rag env: %w", err)
	}
	if cfg.AnthropicAPIKey == "" {
		cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.EmbeddingAPIKey == "" && cfg.EmbeddingProvider == "openai" {
		cfg.EmbeddingAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

// WithDataDir moves the data root and re-derives the directories under it.
func (c Config) WithDataDir(dir string) Config {
	c.DataDir = dir
	c.UploadDir, c.SourceDir, c.VectorDir = "", "", ""
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.UploadDir == "" {
		c.UploadDir = filepath.Join(c.DataDir, "uploads")
	}
	if c.SourceDir == "" {
		c.SourceDir = filepath.Join(c.DataDir, "source")
	}
	if c.VectorDir == "" {
		c.VectorDir = filepath.Join(c.DataDir, "vectors")
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.TopK <= 0 {
		c.TopK = 10
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = 90 * time.Second
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 10 << 20
	}
	for i, e := range c.AllowedExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		c.AllowedExtensions[i] = e
	}
}

// Validate checks the values that would otherwise fail deep inside a request.
func (c Config) Validate() error {
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.ChunkOverlap, c.ChunkSize)
	}
	switch c.EmbeddingProvider {
	case "openai", "ollama", "openai-compat":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.EmbeddingProvider)
	}
	if c.EmbeddingProvider == "openai-compat" && c.EmbeddingBaseURL == "" {
		return fmt.Errorf("embedding base url is required for openai-compat")
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	return nil
}

// EnsureDirs creates the data directories.
func (c Config) EnsureDirs() error {
	for _, d := range []string{c.UploadDir, c.SourceDir, c.VectorDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

func (c Config) typeAllowed(mediaType string) bool {
	for _, t := range c.AllowedTypes {
		if strings.EqualFold(strings.TrimSpace(t), mediaType) {
			return true
		}
	}
	return false
}

func (c Config) extensionAllowed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range c.AllowedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}
