package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// holds parsed command-line flag values and which were set
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// holds the results of reading WOLFIE_* variables
type EnvResult struct {
	AdminKeys   map[string]struct{}
	SigningKeys map[string]struct{}
	EnvUsed     bool
}

// holds the result of LoadEffectiveConfig
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", or "env"
}

// loads config from file, returns config, found bool, and error
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	if cfgPath == "" {
		return &Config{}, false, nil
	}
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// loads WOLFIE_* environment variables into a new Config; caller config is unchanged
func ParseConfigEnvs() (*Config, EnvResult) {
	envs := map[string]string{
		"ADDR":           os.Getenv("WOLFIE_ADDR"),
		"SERVER_ADDRESS": os.Getenv("WOLFIE_SERVER_ADDRESS"),
		"SERVER_PORT":    os.Getenv("WOLFIE_SERVER_PORT"),
		"DB_PATH":        os.Getenv("WOLFIE_DB_PATH"),
		"PUBLIC_URL":     os.Getenv("WOLFIE_PUBLIC_URL"),
		"TLS_CERT":       os.Getenv("WOLFIE_TLS_CERT"),
		"TLS_KEY":        os.Getenv("WOLFIE_TLS_KEY"),

		"CORS_ORIGINS":   os.Getenv("WOLFIE_CORS_ORIGINS"),
		"RATE_RPS":       os.Getenv("WOLFIE_RATE_RPS"),
		"RATE_BURST":     os.Getenv("WOLFIE_RATE_BURST"),
		"IP_WHITELIST":   os.Getenv("WOLFIE_IP_WHITELIST"),
		"API_ADMIN_KEYS": os.Getenv("WOLFIE_API_ADMIN_KEYS"),
		"SIGNING_KEYS":   os.Getenv("WOLFIE_SIGNING_KEYS"),
		"SESSION_TTL":    os.Getenv("WOLFIE_SESSION_TTL"),
		"COOKIE_SECURE":  os.Getenv("WOLFIE_COOKIE_SECURE"),

		"RETENTION_ENABLED": os.Getenv("WOLFIE_RETENTION_ENABLED"),
		"RETENTION_CRON":    os.Getenv("WOLFIE_RETENTION_CRON"),
		"RETENTION_DRY_RUN": os.Getenv("WOLFIE_RETENTION_DRY_RUN"),

		"TELEMETRY_SAMPLE_RATE":    os.Getenv("WOLFIE_TELEMETRY_SAMPLE_RATE"),
		"TELEMETRY_SLOW_THRESHOLD": os.Getenv("WOLFIE_TELEMETRY_SLOW_THRESHOLD"),
		"TELEMETRY_BUFFER_SIZE":    os.Getenv("WOLFIE_TELEMETRY_BUFFER_SIZE"),
		"TELEMETRY_FILE_MAX_SIZE":  os.Getenv("WOLFIE_TELEMETRY_FILE_MAX_SIZE"),

		"LOG_LEVEL": os.Getenv("WOLFIE_LOG_LEVEL"),

		"RAG_URL":                 os.Getenv("WOLFIE_RAG_URL"),
		"RAG_QUERY_TIMEOUT":       os.Getenv("WOLFIE_RAG_QUERY_TIMEOUT"),
		"RAG_TOP_K":               os.Getenv("WOLFIE_RAG_TOP_K"),
		"RAG_STAGE_PAUSE":         os.Getenv("WOLFIE_RAG_STAGE_PAUSE"),
		"RAG_MAX_ATTACHMENT_SIZE": os.Getenv("WOLFIE_RAG_MAX_ATTACHMENT_SIZE"),

		"STORAGE_ENDPOINT":          os.Getenv("WOLFIE_STORAGE_ENDPOINT"),
		"STORAGE_PROJECT":           os.Getenv("WOLFIE_STORAGE_PROJECT"),
		"STORAGE_API_KEY":           os.Getenv("WOLFIE_STORAGE_API_KEY"),
		"STORAGE_TIMEOUT":           os.Getenv("WOLFIE_STORAGE_TIMEOUT"),
		"STORAGE_MAX_DOWNLOAD_SIZE": os.Getenv("WOLFIE_STORAGE_MAX_DOWNLOAD_SIZE"),

		"CATALOG_PATH": os.Getenv("WOLFIE_CATALOG_PATH"),
	}

	envUsed := false
	for _, v := range envs {
		if v != "" {
			envUsed = true
			break
		}
	}
	envCfg := &Config{}

	// parse helpers
	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	parseBool := func(v string) bool {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			return true
		default:
			return false
		}
	}

	parseInt := func(v string) int {
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}

	parseSizeBytes := func(v string) SizeBytes {
		s, err := parseSize(v)
		if err != nil {
			return 0
		}
		return s
	}

	parseDuration := func(v string) Duration {
		d, err := parseDurationValue(v)
		if err != nil {
			return 0
		}
		return d
	}

	// WOLFIE_ADDR wins over the split address/port pair
	if v := envs["ADDR"]; v != "" {
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			envCfg.Server.Port = parseInt(p)
		} else {
			envCfg.Server.Address = v
		}
	} else {
		envCfg.Server.Address = envs["SERVER_ADDRESS"]
		if port := envs["SERVER_PORT"]; port != "" {
			envCfg.Server.Port = parseInt(port)
		}
	}
	envCfg.Server.DBPath = envs["DB_PATH"]
	envCfg.Server.PublicURL = envs["PUBLIC_URL"]
	envCfg.Server.TLS.CertFile = envs["TLS_CERT"]
	envCfg.Server.TLS.KeyFile = envs["TLS_KEY"]

	envCfg.Security.CORS.AllowedOrigins = parseList(envs["CORS_ORIGINS"])
	if v := envs["RATE_RPS"]; v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envCfg.Security.RateLimit.RPS = f
		}
	}
	if v := envs["RATE_BURST"]; v != "" {
		envCfg.Security.RateLimit.Burst = parseInt(v)
	}
	envCfg.Security.IPWhitelist = parseList(envs["IP_WHITELIST"])
	envCfg.Security.APIKeys.Admin = parseList(envs["API_ADMIN_KEYS"])
	envCfg.Security.SigningKeys = parseList(envs["SIGNING_KEYS"])
	envCfg.Security.SessionTTL = parseDuration(envs["SESSION_TTL"])
	envCfg.Security.CookieSecure = parseBool(envs["COOKIE_SECURE"])

	envCfg.Retention.Enabled = parseBool(envs["RETENTION_ENABLED"])
	envCfg.Retention.Cron = envs["RETENTION_CRON"]
	envCfg.Retention.DryRun = parseBool(envs["RETENTION_DRY_RUN"])

	if v := envs["TELEMETRY_SAMPLE_RATE"]; v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envCfg.Telemetry.SampleRate = f
		}
	}
	envCfg.Telemetry.SlowThreshold = parseDuration(envs["TELEMETRY_SLOW_THRESHOLD"])
	envCfg.Telemetry.BufferSize = parseSizeBytes(envs["TELEMETRY_BUFFER_SIZE"])
	envCfg.Telemetry.FileMaxSize = parseSizeBytes(envs["TELEMETRY_FILE_MAX_SIZE"])

	envCfg.Logging.Level = strings.TrimSpace(envs["LOG_LEVEL"])

	envCfg.RAG.URL = strings.TrimSpace(envs["RAG_URL"])
	envCfg.RAG.QueryTimeout = parseDuration(envs["RAG_QUERY_TIMEOUT"])
	envCfg.RAG.TopK = parseInt(envs["RAG_TOP_K"])
	envCfg.RAG.StagePause = parseDuration(envs["RAG_STAGE_PAUSE"])
	envCfg.RAG.MaxAttachmentSize = parseSizeBytes(envs["RAG_MAX_ATTACHMENT_SIZE"])

	envCfg.Storage.Endpoint = strings.TrimSpace(envs["STORAGE_ENDPOINT"])
	envCfg.Storage.Project = strings.TrimSpace(envs["STORAGE_PROJECT"])
	envCfg.Storage.APIKey = strings.TrimSpace(envs["STORAGE_API_KEY"])
	envCfg.Storage.Timeout = parseDuration(envs["STORAGE_TIMEOUT"])
	envCfg.Storage.MaxDownloadSize = parseSizeBytes(envs["STORAGE_MAX_DOWNLOAD_SIZE"])

	envCfg.Catalog.Path = envs["CATALOG_PATH"]

	return envCfg, EnvResult{
		AdminKeys:   envCfg.AdminKeySet(),
		SigningKeys: envCfg.SigningKeySet(),
		EnvUsed:     envUsed,
	}
}

// decides which source backs the effective config. an explicit --config
// uses only the file; --addr/--db are applied over the file (if present)
// or env; otherwise the file if present; else env.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envRes EnvResult) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult
	if fileCfg == nil {
		fileCfg = &Config{}
	}
	if envCfg == nil {
		envCfg = &Config{}
	}

	if flags.Set["config"] {
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		return result(fileCfg, "config"), nil
	}

	if flags.Set["addr"] || flags.Set["db"] {
		base := *envCfg
		if fileExists {
			base = *fileCfg
		}
		out := &base
		if flags.Set["addr"] {
			host, port := splitAddr(flags.Addr)
			out.Server.Address = host
			out.Server.Port = port
		}
		if flags.Set["db"] {
			out.Server.DBPath = flags.DB
		}
		return result(out, "flags"), nil
	}

	if fileExists {
		return result(fileCfg, "config"), nil
	}
	return result(envCfg, "env"), nil
}

func result(cfg *Config, source string) EffectiveConfigResult {
	cfg.ApplyDefaults()
	return EffectiveConfigResult{Config: cfg, Addr: cfg.Addr(), DBPath: cfg.Server.DBPath, Source: source}
}

// splits host:port, tolerating ":8080" and bare hosts
func splitAddr(a string) (string, int) {
	if a == "" {
		return "", 0
	}
	h, p, err := net.SplitHostPort(a)
	if err != nil {
		return a, 0
	}
	pi, _ := strconv.Atoi(p)
	return h, pi
}
