package config

import (
	"github.com/spf13/pflag"
)

// RegisterFlags defines the flags ApplyFlags reads. Defaults are left zero:
// only flags set explicitly on the command line override file and env values.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("model", "", "Embedding model identifier (env EMBED_MODEL)")
	fs.String("provider", "", "Embedding provider: ollama, hash (env EMBED_PROVIDER)")
	fs.String("ollama-url", "", "Ollama API URL (env OLLAMA_URL)")
	fs.Int("dimensions", 0, "Vector width for the hash provider (env EMBED_DIMENSIONS)")
	fs.Int("batch-size", 0, "Phrases per batch (env EMBED_BATCH)")
	fs.Int("max-batches", 0, "Stop after this many batches, 0 for no limit (env EMBED_MAX_BATCHES)")
	fs.String("lang-hint", "", "Language hint, informational only (env LANG_HINT)")

	fs.String("storage-driver", "", "Storage driver: postgres, sqlite, mongodb (env EMBED_STORAGE_DRIVER)")
	fs.String("postgres-dsn", "", "PostgreSQL connection string (env PG_DSN)")
	fs.String("postgres-schema", "", "Schema holding phrase tables (env EMBED_PG_SCHEMA)")
	fs.String("upsert-func", "", "Stored procedure recording an embedding (env EMBED_UPSERT_FUNC)")
	fs.Bool("claim", false, "Lock fetched rows with SKIP LOCKED for multi-worker use (env EMBED_CLAIM)")
	fs.String("sqlite-path", "", "Path to SQLite database (env EMBED_SQLITE_PATH)")
	fs.String("mongodb-uri", "", "MongoDB connection URI (env EMBED_MONGODB_URI)")
	fs.String("mongodb-database", "", "MongoDB database name (env EMBED_MONGODB_DATABASE)")

	fs.String("pacing", "", "Pacing strategy: fixed, rate, none (env EMBED_PACING)")
	fs.Duration("pace-interval", 0, "Pause between batches for fixed pacing (env EMBED_PACE_INTERVAL)")
	fs.Float64("pace-rate", 0, "Batches per second for rate pacing (env EMBED_PACE_RATE)")

	fs.String("log-level", "", "Log level: debug, info, warn, error (env EMBED_LOG_LEVEL)")
	fs.String("log-format", "", "Log format: text, json (env EMBED_LOG_FORMAT)")
}

// ApplyFlags overrides c with every flag set on the command line
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	strFlags := map[string]*string{
		"model":            &c.Model,
		"provider":         &c.Provider,
		"ollama-url":       &c.OllamaURL,
		"lang-hint":        &c.LangHint,
		"storage-driver":   &c.Storage.Driver,
		"postgres-dsn":     &c.Storage.PostgresDSN,
		"postgres-schema":  &c.Storage.PostgresSchema,
		"upsert-func":      &c.Storage.UpsertFunc,
		"sqlite-path":      &c.Storage.SQLitePath,
		"mongodb-uri":      &c.Storage.MongoDBURI,
		"mongodb-database": &c.Storage.MongoDBDatabase,
		"pacing":           &c.Pacing.Strategy,
		"log-level":        &c.Log.Level,
		"log-format":       &c.Log.Format,
	}
	for name, dst := range strFlags {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	intFlags := map[string]*int{
		"dimensions":  &c.Dimensions,
		"batch-size":  &c.BatchSize,
		"max-batches": &c.MaxBatches,
	}
	for name, dst := range intFlags {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetInt(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if fs.Changed("claim") {
		v, err := fs.GetBool("claim")
		if err != nil {
			return err
		}
		c.Storage.Claim = v
	}
	if fs.Changed("pace-interval") {
		v, err := fs.GetDuration("pace-interval")
		if err != nil {
			return err
		}
		c.Pacing.Interval = v
	}
	if fs.Changed("pace-rate") {
		v, err := fs.GetFloat64("pace-rate")
		if err != nil {
			return err
		}
		c.Pacing.Rate = v
	}
	return nil
}
