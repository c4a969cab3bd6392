package storage

import (
	"context"
	"regexp"
	"strings"

	"github.com/MereWhiplash/phrase-embedder/internal/types"
)

// Storage is the persistent home of phrases and their embeddings.
type Storage interface {
	// Begin opens the transaction one batch runs in
	Begin(ctx context.Context) (Tx, error)
	// Status reports embedding coverage of active phrases for a model
	Status(ctx context.Context, model string) (*types.Status, error)
	// Migrate creates tables and indexes if they do not exist
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx spans one batch: the work-selection read and every write it produces
// commit or roll back together.
type Tx interface {
	// FetchBatch returns at most limit active phrases that have no embedding
	// for model, ordered by id ascending. An empty result means no work remains.
	FetchBatch(ctx context.Context, model string, limit int) ([]types.Phrase, error)
	// Store records the embedding for (phraseID, model). Storing an existing
	// key is a no-op; embeddings are never overwritten.
	Store(ctx context.Context, phraseID int64, model string, vector []float32) error
	Commit(ctx context.Context) error
	// Rollback discards the batch. Calling it after Commit is a no-op.
	Rollback(ctx context.Context) error
}

var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier reports whether name is a plain lower-case SQL identifier,
// optionally schema-qualified ("schema.name").
func ValidIdentifier(name string) bool {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return false
	}
	for _, p := range parts {
		if !identifierRe.MatchString(p) {
			return false
		}
	}
	return true
}
