package storage

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
)

// Config holds storage configuration
type Config struct {
	Driver string // "sqlite", "postgres", "mongodb"

	// SQLite
	SQLitePath string

	// Postgres
	PostgresDSN    string
	PostgresSchema string
	UpsertFunc     string
	Claim          bool

	// MongoDB
	MongoDBURI      string
	MongoDBDatabase string

	// ConnectRetries bounds reconnect attempts while the backend comes up
	ConnectRetries int
	// Migrate creates the schema after connecting
	Migrate bool
}

// New creates a Storage implementation based on config
func New(ctx context.Context, cfg Config) (Storage, error) {
	var (
		store Storage
		err   error
	)

	switch cfg.Driver {
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		store, err = NewSQLite(cfg.SQLitePath)

	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres DSN is required")
		}
		opts := PostgresOptions{
			Schema:     cfg.PostgresSchema,
			UpsertFunc: cfg.UpsertFunc,
			Claim:      cfg.Claim,
		}
		store, err = withRetry(ctx, cfg.ConnectRetries, func() (Storage, error) {
			return NewPostgres(ctx, cfg.PostgresDSN, opts)
		})

	case "mongodb":
		if cfg.MongoDBURI == "" {
			return nil, fmt.Errorf("mongodb URI is required")
		}
		if cfg.MongoDBDatabase == "" {
			cfg.MongoDBDatabase = "content"
		}
		store, err = withRetry(ctx, cfg.ConnectRetries, func() (Storage, error) {
			return NewMongoDB(ctx, cfg.MongoDBURI, cfg.MongoDBDatabase)
		})

	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Migrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return store, nil
}

// withRetry retries connection establishment with exponential backoff.
// Configuration errors are marked permanent by the constructors and fail fast.
func withRetry(ctx context.Context, retries int, connect func() (Storage, error)) (Storage, error) {
	if retries < 0 {
		retries = 0
	}

	var store Storage
	op := func() error {
		s, err := connect()
		if err != nil {
			return err
		}
		store = s
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return store, nil
}
