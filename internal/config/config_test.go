package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"EMBED_CONFIG", "EMBED_MODEL", "EMBED_PROVIDER", "OLLAMA_URL", "EMBED_DIMENSIONS",
		"EMBED_BATCH", "EMBED_MAX_BATCHES", "LANG_HINT", "EMBED_STORAGE_DRIVER", "PG_DSN",
		"EMBED_PG_SCHEMA", "EMBED_UPSERT_FUNC", "EMBED_CLAIM", "EMBED_SQLITE_PATH",
		"EMBED_MONGODB_URI", "EMBED_MONGODB_DATABASE", "EMBED_CONNECT_RETRIES", "EMBED_PACING",
		"EMBED_PACE_INTERVAL", "EMBED_PACE_RATE", "EMBED_PACE_BURST", "EMBED_LOG_LEVEL",
		"EMBED_LOG_FORMAT", "EMBED_API_ADDR",
	} {
		if v, ok := os.LookupEnv(name); ok {
			os.Unsetenv(name)
			t.Cleanup(func() { os.Setenv(name, v) })
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "bge-m3", cfg.Model)
	assert.Equal(t, 128, cfg.BatchSize)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "content", cfg.Storage.PostgresSchema)
	assert.Equal(t, 100*time.Millisecond, cfg.Pacing.Interval)
	assert.Empty(t, cfg.LangHint)
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("EMBED_MODEL", "BAAI/bge-m3")
	t.Setenv("PG_DSN", "postgres://db/phrases")
	t.Setenv("EMBED_BATCH", "64")
	t.Setenv("LANG_HINT", "ko")
	t.Setenv("EMBED_CLAIM", "true")
	t.Setenv("EMBED_PACE_INTERVAL", "250ms")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "BAAI/bge-m3", cfg.Model)
	assert.Equal(t, "postgres://db/phrases", cfg.Storage.PostgresDSN)
	assert.Equal(t, 64, cfg.BatchSize)
	assert.Equal(t, "ko", cfg.LangHint)
	assert.True(t, cfg.Storage.Claim)
	assert.Equal(t, 250*time.Millisecond, cfg.Pacing.Interval)
}

func TestLoad_MalformedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("EMBED_BATCH", "lots")
	t.Setenv("EMBED_PACE_INTERVAL", "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMBED_BATCH")
	assert.Contains(t, err.Error(), "EMBED_PACE_INTERVAL")
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model: multilingual-e5
provider: hash
batch_size: 32
storage:
  driver: sqlite
  sqlite_path: /tmp/phrases.db
pacing:
  strategy: rate
  rate: 2.5
log:
  format: json
`), 0o644))
	t.Setenv("EMBED_BATCH", "16")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "multilingual-e5", cfg.Model)
	assert.Equal(t, "hash", cfg.Provider)
	assert.Equal(t, 16, cfg.BatchSize, "env overrides file")
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/phrases.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "rate", cfg.Pacing.Strategy)
	assert.InDelta(t, 2.5, cfg.Pacing.Rate, 1e-9)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvConfigPath(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: from-file\n"), 0o644))
	t.Setenv("EMBED_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Model)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyFlags(t *testing.T) {
	clearEnv(t)
	t.Setenv("EMBED_BATCH", "16")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--batch-size=8", "--storage-driver=sqlite", "--claim", "--pace-interval=1s"}))

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.ApplyFlags(fs))

	assert.Equal(t, 8, cfg.BatchSize)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.True(t, cfg.Storage.Claim)
	assert.Equal(t, time.Second, cfg.Pacing.Interval)
	// Untouched flags keep env/default values
	assert.Equal(t, "bge-m3", cfg.Model)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"negative batch size", func(c *Config) { c.BatchSize = -5 }},
		{"empty model", func(c *Config) { c.Model = "" }},
		{"unknown provider", func(c *Config) { c.Provider = "torch" }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "oracle" }},
		{"bad schema", func(c *Config) { c.Storage.PostgresSchema = "content;drop" }},
		{"bad upsert func", func(c *Config) { c.Storage.UpsertFunc = "f()" }},
		{"missing mongo uri", func(c *Config) { c.Storage.Driver = "mongodb" }},
		{"unknown pacing", func(c *Config) { c.Pacing.Strategy = "jitter" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "rows", 2)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"rows":2`)
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Storage.Claim = true

	sc := cfg.StorageConfig()
	assert.Equal(t, "postgres", sc.Driver)
	assert.True(t, sc.Claim)
	assert.Equal(t, 3, sc.ConnectRetries)

	ec := cfg.EmbedderConfig()
	assert.Equal(t, "bge-m3", ec.Model)
	assert.Equal(t, "ollama", ec.Provider)

	pc := cfg.PacerConfig()
	assert.Equal(t, "fixed", pc.Strategy)
}
