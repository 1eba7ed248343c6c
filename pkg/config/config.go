package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults and limits
const (
	defaultPort      = 8080
	defaultDBPath    = "./.wolfie"
	defaultPublicURL = "http://localhost:8080"

	defaultRateRPS    = 50
	defaultRateBurst  = 100
	defaultSessionTTL = 12 * time.Hour

	defaultRetentionCron = "*/30 * * * *"

	defaultTelemetrySampleRate    = 0.01
	defaultTelemetrySlowMs        = 500
	defaultTelemetryBufferSize    = 1 << 20
	defaultTelemetryFileMaxSize   = 40 << 20
	defaultTelemetryFlushMs       = 2000
	defaultTelemetryQueueCapacity = 2048

	defaultRAGURL            = "http://localhost:8000"
	defaultQueryTimeout      = 60 * time.Second
	defaultTopK              = 5
	defaultStagePause        = time.Second
	defaultMaxAttachmentSize = 20 << 20

	defaultStorageEndpoint = "https://sfo.cloud.appwrite.io/v1"
	defaultStorageTimeout  = 30 * time.Second
	defaultMaxDownloadSize = 25 << 20
)

// Addr returns the HTTP server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset value.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = defaultDBPath
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = defaultPublicURL
	}
	c.Server.PublicURL = strings.TrimRight(c.Server.PublicURL, "/")

	// Security defaults: rate limiting
	if c.Security.RateLimit.RPS <= 0 {
		c.Security.RateLimit.RPS = defaultRateRPS
	}
	if c.Security.RateLimit.Burst <= 0 {
		c.Security.RateLimit.Burst = defaultRateBurst
	}
	if c.Security.SessionTTL.Duration() == 0 {
		c.Security.SessionTTL = Duration(defaultSessionTTL)
	}

	if c.Retention.Cron == "" {
		c.Retention.Cron = defaultRetentionCron
	}

	// Telemetry defaults
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = defaultTelemetrySampleRate
	}
	if c.Telemetry.SlowThreshold.Duration() == 0 {
		c.Telemetry.SlowThreshold = Duration(time.Duration(defaultTelemetrySlowMs) * time.Millisecond)
	}
	if c.Telemetry.BufferSize.Int64() == 0 {
		c.Telemetry.BufferSize = SizeBytes(defaultTelemetryBufferSize)
	}
	if c.Telemetry.FileMaxSize.Int64() == 0 {
		c.Telemetry.FileMaxSize = SizeBytes(defaultTelemetryFileMaxSize)
	}
	if c.Telemetry.FlushInterval.Duration() == 0 {
		c.Telemetry.FlushInterval = Duration(time.Duration(defaultTelemetryFlushMs) * time.Millisecond)
	}
	if c.Telemetry.QueueCapacity <= 0 {
		c.Telemetry.QueueCapacity = defaultTelemetryQueueCapacity
	}

	// Chat / RAG defaults
	if c.RAG.URL == "" {
		c.RAG.URL = defaultRAGURL
	}
	if c.RAG.QueryTimeout.Duration() == 0 {
		c.RAG.QueryTimeout = Duration(defaultQueryTimeout)
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = defaultTopK
	}
	if c.RAG.StagePause.Duration() == 0 {
		c.RAG.StagePause = Duration(defaultStagePause)
	}
	if c.RAG.MaxAttachmentSize.Int64() == 0 {
		c.RAG.MaxAttachmentSize = SizeBytes(defaultMaxAttachmentSize)
	}

	if c.Storage.Endpoint == "" {
		c.Storage.Endpoint = defaultStorageEndpoint
	}
	if c.Storage.Timeout.Duration() == 0 {
		c.Storage.Timeout = Duration(defaultStorageTimeout)
	}
	if c.Storage.MaxDownloadSize.Int64() == 0 {
		c.Storage.MaxDownloadSize = SizeBytes(defaultMaxDownloadSize)
	}
}

// AdminKeySet returns the admin API keys as a set.
func (c *Config) AdminKeySet() map[string]struct{} { return toSet(c.Security.APIKeys.Admin) }

// SigningKeySet returns the sign-in signing keys as a set.
func (c *Config) SigningKeySet() map[string]struct{} { return toSet(c.Security.SigningKeys) }

func toSet(list []string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, k := range list {
		if k = strings.TrimSpace(k); k != "" {
			out[k] = struct{}{}
		}
	}
	return out
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("WOLFIE_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
