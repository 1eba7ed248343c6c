package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/adhocore/gronx"
)

// fail fast on critical errors; defaults are already applied
func ValidateConfig(eff EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("effective config is nil")
	}
	if p := eff.DBPath; p == "" {
		return fmt.Errorf("database path is empty: set --db flag, WOLFIE_DB_PATH env, or server.db_path in config")
	}

	// TLS cert/key presence check if one is set
	cert := cfg.Server.TLS.CertFile
	key := cfg.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	if err := validateHTTPURL("rag.url", cfg.RAG.URL); err != nil {
		return err
	}
	if err := validateHTTPURL("storage.endpoint", cfg.Storage.Endpoint); err != nil {
		return err
	}
	if err := validateHTTPURL("server.public_url", cfg.Server.PublicURL); err != nil {
		return err
	}

	if cfg.Security.RateLimit.Burst < 1 {
		return fmt.Errorf("security.rate_limit.burst must be at least 1")
	}
	if cfg.Security.SessionTTL.Duration() <= 0 {
		return fmt.Errorf("security.session_ttl must be positive")
	}
	if cfg.RAG.QueryTimeout.Duration() <= 0 {
		return fmt.Errorf("rag.query_timeout must be positive")
	}
	if cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1")
	}

	if cfg.Retention.Enabled && !gronx.New().IsValid(cfg.Retention.Cron) {
		return fmt.Errorf("invalid retention.cron: not a valid cron expression")
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s: expected an http(s) url, got %q", field, raw)
	}
	return nil
}
