package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadConfigFile(t *testing.T) {
	p := writeFile(t, `
server:
  address: 127.0.0.1
  port: 9090
  db_path: /tmp/wolfie
security:
  signing_keys: [k1]
  session_ttl: 2h
rag:
  url: http://rag:8000
  query_timeout: 30
  max_attachment_size: 5MB
storage:
  project: ccs
retention:
  enabled: true
  cron: "0 * * * *"
`)
	cfg, err := LoadConfigFile(p)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
	assert.Equal(t, 2*time.Hour, cfg.Security.SessionTTL.Duration())
	assert.Equal(t, 30*time.Second, cfg.RAG.QueryTimeout.Duration())
	assert.Equal(t, int64(5_000_000), cfg.RAG.MaxAttachmentSize.Int64())
	assert.Contains(t, cfg.SigningKeySet(), "k1")
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.Server.PublicURL = "https://hub.example.edu/"
	cfg.ApplyDefaults()
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, "https://hub.example.edu", cfg.Server.PublicURL)
	assert.Equal(t, 60*time.Second, cfg.RAG.QueryTimeout.Duration())
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, time.Second, cfg.RAG.StagePause.Duration())
	assert.Equal(t, "https://sfo.cloud.appwrite.io/v1", cfg.Storage.Endpoint)
	assert.Equal(t, int64(25<<20), cfg.Storage.MaxDownloadSize.Int64())
	assert.Equal(t, 12*time.Hour, cfg.Security.SessionTTL.Duration())
}

func TestParseConfigEnvs(t *testing.T) {
	t.Setenv("WOLFIE_ADDR", "127.0.0.1:7000")
	t.Setenv("WOLFIE_SIGNING_KEYS", "a, b,,")
	t.Setenv("WOLFIE_RAG_QUERY_TIMEOUT", "90s")
	t.Setenv("WOLFIE_RETENTION_ENABLED", "yes")
	t.Setenv("WOLFIE_RATE_RPS", "2.5")

	cfg, res := ParseConfigEnvs()
	assert.True(t, res.EnvUsed)
	assert.Equal(t, "127.0.0.1", cfg.Server.Address)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, []string{"a", "b"}, cfg.Security.SigningKeys)
	assert.Len(t, res.SigningKeys, 2)
	assert.Equal(t, 90*time.Second, cfg.RAG.QueryTimeout.Duration())
	assert.True(t, cfg.Retention.Enabled)
	assert.Equal(t, 2.5, cfg.Security.RateLimit.RPS)
}

func TestLoadEffectiveConfigPrecedence(t *testing.T) {
	file := &Config{}
	file.Server.DBPath = "/file/db"
	env := &Config{}
	env.Server.DBPath = "/env/db"

	eff, err := LoadEffectiveConfig(Flags{Set: map[string]bool{}}, file, true, env, EnvResult{})
	require.NoError(t, err)
	assert.Equal(t, "config", eff.Source)
	assert.Equal(t, "/file/db", eff.DBPath)

	eff, err = LoadEffectiveConfig(Flags{Set: map[string]bool{}}, file, false, env, EnvResult{})
	require.NoError(t, err)
	assert.Equal(t, "env", eff.Source)
	assert.Equal(t, "/env/db", eff.DBPath)

	flags := Flags{Addr: ":9999", Set: map[string]bool{"addr": true}}
	eff, err = LoadEffectiveConfig(flags, file, false, env, EnvResult{})
	require.NoError(t, err)
	assert.Equal(t, "flags", eff.Source)
	assert.Equal(t, "0.0.0.0:9999", eff.Addr)
	assert.Equal(t, "/env/db", eff.DBPath)

	_, err = LoadEffectiveConfig(Flags{Config: "missing.yaml", Set: map[string]bool{"config": true}}, nil, false, env, EnvResult{})
	assert.Error(t, err)
}

func TestParseConfigFileMissing(t *testing.T) {
	cfg, found, err := ParseConfigFile(Flags{Config: filepath.Join(t.TempDir(), "nope.yaml"), Set: map[string]bool{"config": true}})
	require.NoError(t, err)
	assert.False(t, found)
	assert.NotNil(t, cfg)
}

func TestValidateConfig(t *testing.T) {
	valid := func() EffectiveConfigResult {
		cfg := &Config{}
		cfg.ApplyDefaults()
		return EffectiveConfigResult{Config: cfg, DBPath: cfg.Server.DBPath}
	}
	require.NoError(t, ValidateConfig(valid()))

	cases := map[string]func(*EffectiveConfigResult){
		"nil config":   func(e *EffectiveConfigResult) { e.Config = nil },
		"empty db":     func(e *EffectiveConfigResult) { e.DBPath = "" },
		"half tls":     func(e *EffectiveConfigResult) { e.Config.Server.TLS.CertFile = "cert.pem" },
		"bad rag url":  func(e *EffectiveConfigResult) { e.Config.RAG.URL = "rag:8000" },
		"bad endpoint": func(e *EffectiveConfigResult) { e.Config.Storage.Endpoint = "ftp://x" },
		"bad cron": func(e *EffectiveConfigResult) {
			e.Config.Retention.Enabled = true
			e.Config.Retention.Cron = "every tuesday"
		},
		"bad sample rate": func(e *EffectiveConfigResult) { e.Config.Telemetry.SampleRate = 2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			eff := valid()
			mutate(&eff)
			assert.Error(t, ValidateConfig(eff))
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("WOLFIE_CONFIG", "/etc/wolfie.yaml")
	assert.Equal(t, "/etc/wolfie.yaml", ResolveConfigPath("./config.yaml", false))
	assert.Equal(t, "./mine.yaml", ResolveConfigPath("./mine.yaml", true))
}
