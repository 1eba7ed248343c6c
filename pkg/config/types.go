package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the portal configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
	Retention RetentionConfig `yaml:"retention"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	RAG       RAGConfig       `yaml:"rag"`
	Storage   StorageConfig   `yaml:"storage"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

// ServerConfig holds http and tls settings.
type ServerConfig struct {
	Address   string    `yaml:"address"`
	Port      int       `yaml:"port"`
	DBPath    string    `yaml:"db_path"`
	PublicURL string    `yaml:"public_url"`
	TLS       TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// SecurityConfig holds security related settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
	APIKeys     struct {
		Admin []string `yaml:"admin"`
	} `yaml:"api_keys"`
	// SigningKeys verify the user signatures presented at sign-in.
	SigningKeys  []string `yaml:"signing_keys"`
	SessionTTL   Duration `yaml:"session_ttl"`
	CookieSecure bool     `yaml:"cookie_secure"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// RetentionConfig controls the expired-session purge.
type RetentionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	DryRun  bool   `yaml:"dry_run"`
	Paused  bool   `yaml:"paused"`
}

// TelemetryConfig controls sampling and slow-request thresholds.
type TelemetryConfig struct {
	SampleRate    float64   `yaml:"sample_rate"`
	SlowThreshold Duration  `yaml:"slow_threshold"`
	BufferSize    SizeBytes `yaml:"buffer_size"`
	FileMaxSize   SizeBytes `yaml:"file_max_size"`
	FlushInterval Duration  `yaml:"flush_interval"`
	QueueCapacity int       `yaml:"queue_capacity"`
}

// RAGConfig points the chat at the retrieval service.
type RAGConfig struct {
	URL               string    `yaml:"url"`
	QueryTimeout      Duration  `yaml:"query_timeout"`
	TopK              int       `yaml:"top_k"`
	StagePause        Duration  `yaml:"stage_pause"`
	MaxAttachmentSize SizeBytes `yaml:"max_attachment_size"`
}

// StorageConfig holds the Appwrite project used for downloads.
type StorageConfig struct {
	Endpoint        string    `yaml:"endpoint"`
	Project         string    `yaml:"project"`
	APIKey          string    `yaml:"api_key"`
	Timeout         Duration  `yaml:"timeout"`
	MaxDownloadSize SizeBytes `yaml:"max_download_size"` // caps a file proxied to the browser
}

// CatalogConfig overrides the embedded portal content.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	v, err := parseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func (s SizeBytes) String() string {
	if s <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(s))
}

func parseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = 0
		return nil
	}
	v, err := parseDurationValue(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDurationValue(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}
