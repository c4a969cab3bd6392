// Package config loads worker configuration from defaults, an optional YAML
// file, the environment, and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MereWhiplash/phrase-embedder/internal/embedder"
	"github.com/MereWhiplash/phrase-embedder/internal/pacer"
	"github.com/MereWhiplash/phrase-embedder/internal/storage"
)

// Config is the complete worker configuration
type Config struct {
	// Model names the embedding model and keys stored embeddings
	Model      string `yaml:"model"`
	Provider   string `yaml:"provider"`
	OllamaURL  string `yaml:"ollama_url"`
	Dimensions int    `yaml:"dimensions"`

	BatchSize  int `yaml:"batch_size"`
	MaxBatches int `yaml:"max_batches"`
	// LangHint is informational only; it is logged at startup
	LangHint string `yaml:"lang_hint"`

	Storage StorageConfig `yaml:"storage"`
	Pacing  PacingConfig  `yaml:"pacing"`
	Log     LogConfig     `yaml:"log"`
	API     APIConfig     `yaml:"api"`
}

// StorageConfig selects the storage backend
type StorageConfig struct {
	Driver          string `yaml:"driver"`
	PostgresDSN     string `yaml:"postgres_dsn"`
	PostgresSchema  string `yaml:"postgres_schema"`
	UpsertFunc      string `yaml:"upsert_func"`
	Claim           bool   `yaml:"claim"`
	SQLitePath      string `yaml:"sqlite_path"`
	MongoDBURI      string `yaml:"mongodb_uri"`
	MongoDBDatabase string `yaml:"mongodb_database"`
	ConnectRetries  int    `yaml:"connect_retries"`
}

// PacingConfig selects how the worker spaces batches
type PacingConfig struct {
	Strategy string        `yaml:"strategy"`
	Interval time.Duration `yaml:"interval"`
	Rate     float64       `yaml:"rate"`
	Burst    int           `yaml:"burst"`
}

// LogConfig controls the slog handler
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// APIConfig configures the HTTP status API
type APIConfig struct {
	Addr string `yaml:"addr"`
	// RateLimit is requests per minute per client IP, 0 disables it
	RateLimit int `yaml:"rate_limit"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Model:      "bge-m3",
		Provider:   "ollama",
		OllamaURL:  "http://localhost:11434",
		Dimensions: embedder.DefaultHashDimensions,
		BatchSize:  128,
		Storage: StorageConfig{
			Driver:          "postgres",
			PostgresDSN:     "host=localhost dbname=wysg_dev user=postgres password=postgres",
			PostgresSchema:  storage.DefaultPostgresSchema,
			SQLitePath:      "phrases.db",
			MongoDBDatabase: "content",
			ConnectRetries:  3,
		},
		Pacing: PacingConfig{
			Strategy: "fixed",
			Interval: pacer.DefaultInterval,
			Rate:     10,
			Burst:    1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		API: APIConfig{
			Addr:      ":8080",
			RateLimit: 100,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (if non-empty),
// and the environment. An empty path falls back to $EMBED_CONFIG.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("EMBED_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(dst *string, name string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	num := func(dst *int, name string) {
		if v, ok := os.LookupEnv(name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	flt := func(dst *float64, name string) {
		if v, ok := os.LookupEnv(name); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(dst *bool, name string) {
		if v, ok := os.LookupEnv(name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}
	dur := func(dst *time.Duration, name string) {
		if v, ok := os.LookupEnv(name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	str(&c.Model, "EMBED_MODEL")
	str(&c.Provider, "EMBED_PROVIDER")
	str(&c.OllamaURL, "OLLAMA_URL")
	num(&c.Dimensions, "EMBED_DIMENSIONS")
	num(&c.BatchSize, "EMBED_BATCH")
	num(&c.MaxBatches, "EMBED_MAX_BATCHES")
	str(&c.LangHint, "LANG_HINT")

	str(&c.Storage.Driver, "EMBED_STORAGE_DRIVER")
	str(&c.Storage.PostgresDSN, "PG_DSN")
	str(&c.Storage.PostgresSchema, "EMBED_PG_SCHEMA")
	str(&c.Storage.UpsertFunc, "EMBED_UPSERT_FUNC")
	boolean(&c.Storage.Claim, "EMBED_CLAIM")
	str(&c.Storage.SQLitePath, "EMBED_SQLITE_PATH")
	str(&c.Storage.MongoDBURI, "EMBED_MONGODB_URI")
	str(&c.Storage.MongoDBDatabase, "EMBED_MONGODB_DATABASE")
	num(&c.Storage.ConnectRetries, "EMBED_CONNECT_RETRIES")

	str(&c.Pacing.Strategy, "EMBED_PACING")
	dur(&c.Pacing.Interval, "EMBED_PACE_INTERVAL")
	flt(&c.Pacing.Rate, "EMBED_PACE_RATE")
	num(&c.Pacing.Burst, "EMBED_PACE_BURST")

	str(&c.Log.Level, "EMBED_LOG_LEVEL")
	str(&c.Log.Format, "EMBED_LOG_FORMAT")
	str(&c.API.Addr, "EMBED_API_ADDR")
	num(&c.API.RateLimit, "EMBED_API_RATE_LIMIT")

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model is required"))
	}
	switch c.Provider {
	case "ollama", "hash":
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q: must be ollama or hash", c.Provider))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be a positive integer, got %d", c.BatchSize))
	}
	if c.MaxBatches < 0 {
		errs = append(errs, fmt.Errorf("max batches must not be negative, got %d", c.MaxBatches))
	}

	switch c.Storage.Driver {
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres DSN is required"))
		}
		if !storage.ValidIdentifier(c.Storage.PostgresSchema) || strings.Contains(c.Storage.PostgresSchema, ".") {
			errs = append(errs, fmt.Errorf("invalid postgres schema %q", c.Storage.PostgresSchema))
		}
		if c.Storage.UpsertFunc != "" && !storage.ValidIdentifier(c.Storage.UpsertFunc) {
			errs = append(errs, fmt.Errorf("invalid upsert function %q", c.Storage.UpsertFunc))
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite path is required"))
		}
	case "mongodb":
		if c.Storage.MongoDBURI == "" {
			errs = append(errs, errors.New("mongodb URI is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q: must be postgres, sqlite, or mongodb", c.Storage.Driver))
	}

	if c.API.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("api rate limit must not be negative, got %d", c.API.RateLimit))
	}

	if _, err := pacer.New(c.PacerConfig()); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q: must be text or json", c.Log.Format))
	}

	return errors.Join(errs...)
}

// StorageConfig converts to the storage factory's config
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Driver:          c.Storage.Driver,
		SQLitePath:      c.Storage.SQLitePath,
		PostgresDSN:     c.Storage.PostgresDSN,
		PostgresSchema:  c.Storage.PostgresSchema,
		UpsertFunc:      c.Storage.UpsertFunc,
		Claim:           c.Storage.Claim,
		MongoDBURI:      c.Storage.MongoDBURI,
		MongoDBDatabase: c.Storage.MongoDBDatabase,
		ConnectRetries:  c.Storage.ConnectRetries,
	}
}

// EmbedderConfig converts to the embedder factory's config
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:   c.Provider,
		Model:      c.Model,
		OllamaURL:  c.OllamaURL,
		Dimensions: c.Dimensions,
	}
}

// PacerConfig converts to the pacer factory's config
func (c *Config) PacerConfig() pacer.Config {
	return pacer.Config{
		Strategy: c.Pacing.Strategy,
		Interval: c.Pacing.Interval,
		Rate:     c.Pacing.Rate,
		Burst:    c.Pacing.Burst,
	}
}

// NewLogger builds the process logger writing to w
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
