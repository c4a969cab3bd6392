package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/MereWhiplash/phrase-embedder/internal/types"
)

// DefaultPostgresSchema holds the phrase and phrase_embedding tables
const DefaultPostgresSchema = "content"

// PostgresOptions tunes the Postgres backend
type PostgresOptions struct {
	// Schema containing phrase and phrase_embedding
	Schema string
	// UpsertFunc, when set, names a function (schema, text, vector) used
	// instead of the built-in INSERT ... ON CONFLICT
	UpsertFunc string
	// Claim locks fetched rows with SKIP LOCKED so concurrent workers
	// never select the same phrase
	Claim bool
}

// Postgres implements Storage using PostgreSQL with pgvector
type Postgres struct {
	pool *pgxpool.Pool

	phraseTable    string
	embeddingTable string
	upsertFunc     string
	schema         string
	claim          bool
}

// NewPostgres creates a new Postgres storage
func NewPostgres(ctx context.Context, dsn string, opts PostgresOptions) (*Postgres, error) {
	if opts.Schema == "" {
		opts.Schema = DefaultPostgresSchema
	}
	if !ValidIdentifier(opts.Schema) || strings.Contains(opts.Schema, ".") {
		return nil, backoff.Permanent(fmt.Errorf("invalid postgres schema %q", opts.Schema))
	}
	if opts.UpsertFunc != "" && !ValidIdentifier(opts.UpsertFunc) {
		return nil, backoff.Permanent(fmt.Errorf("invalid upsert function %q", opts.UpsertFunc))
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to connect to postgres: %w", err))
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	p := &Postgres{
		pool:           pool,
		schema:         opts.Schema,
		phraseTable:    pgx.Identifier{opts.Schema, "phrase"}.Sanitize(),
		embeddingTable: pgx.Identifier{opts.Schema, "phrase_embedding"}.Sanitize(),
		claim:          opts.Claim,
	}
	if opts.UpsertFunc != "" {
		p.upsertFunc = pgx.Identifier(strings.Split(opts.UpsertFunc, ".")).Sanitize()
	}

	return p, nil
}

func (p *Postgres) Migrate(ctx context.Context) error {
	schema := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE SCHEMA IF NOT EXISTS %[1]s;

		CREATE TABLE IF NOT EXISTS %[2]s (
			id BIGSERIAL PRIMARY KEY,
			text TEXT NOT NULL,
			lang TEXT,
			active BOOLEAN NOT NULL DEFAULT TRUE
		);

		CREATE TABLE IF NOT EXISTS %[3]s (
			phrase_id BIGINT NOT NULL REFERENCES %[2]s(id) ON DELETE CASCADE,
			model TEXT NOT NULL,
			embedding vector NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (phrase_id, model)
		);

		CREATE INDEX IF NOT EXISTS idx_phrase_active ON %[2]s(id) WHERE active;
		CREATE INDEX IF NOT EXISTS idx_phrase_embedding_model ON %[3]s(model);

		CREATE OR REPLACE FUNCTION %[4]s(p_phrase_id BIGINT, p_model TEXT, p_embedding vector)
		RETURNS void LANGUAGE sql AS $$
			INSERT INTO %[3]s (phrase_id, model, embedding)
			VALUES (p_phrase_id, p_model, p_embedding)
			ON CONFLICT (phrase_id, model) DO NOTHING;
		$$;
	`,
		pgx.Identifier{p.schema}.Sanitize(),
		p.phraseTable,
		p.embeddingTable,
		pgx.Identifier{p.schema, "set_phrase_embedding"}.Sanitize(),
	)
	_, err := p.pool.Exec(ctx, schema)
	return err
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &postgresTx{p: p, tx: tx}, nil
}

func (p *Postgres) Status(ctx context.Context, model string) (*types.Status, error) {
	query := fmt.Sprintf(`
		SELECT
			(SELECT count(*) FROM %[1]s WHERE active = TRUE),
			(SELECT count(*) FROM %[2]s e
			   JOIN %[1]s p ON p.id = e.phrase_id
			  WHERE e.model = $1 AND p.active = TRUE)
	`, p.phraseTable, p.embeddingTable)

	st := &types.Status{Model: model}
	if err := p.pool.QueryRow(ctx, query, model).Scan(&st.ActivePhrases, &st.Embedded); err != nil {
		return nil, fmt.Errorf("failed to count phrases: %w", err)
	}
	st.Pending = st.ActivePhrases - st.Embedded
	return st, nil
}

type postgresTx struct {
	p  *Postgres
	tx pgx.Tx
}

func (t *postgresTx) FetchBatch(ctx context.Context, model string, limit int) ([]types.Phrase, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("invalid batch limit %d", limit)
	}

	query := fmt.Sprintf(`
		SELECT p.id, p.text, p.lang
		FROM %s p
		LEFT JOIN %s e
		  ON e.phrase_id = p.id AND e.model = $1
		WHERE e.phrase_id IS NULL
		  AND p.active = TRUE
		ORDER BY p.id
		LIMIT $2
	`, t.p.phraseTable, t.p.embeddingTable)
	if t.p.claim {
		query += " FOR UPDATE OF p SKIP LOCKED"
	}

	rows, err := t.tx.Query(ctx, query, model, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch phrases: %w", err)
	}

	phrases, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Phrase, error) {
		var ph types.Phrase
		var lang *string
		if err := row.Scan(&ph.ID, &ph.Text, &lang); err != nil {
			return ph, err
		}
		if lang != nil {
			ph.Lang = *lang
		}
		ph.Active = true
		return ph, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan phrases: %w", err)
	}
	return phrases, nil
}

func (t *postgresTx) Store(ctx context.Context, phraseID int64, model string, vector []float32) error {
	vec := pgvector.NewVector(vector)

	var err error
	if t.p.upsertFunc != "" {
		_, err = t.tx.Exec(ctx,
			fmt.Sprintf(`SELECT %s($1, $2, $3::vector)`, t.p.upsertFunc),
			phraseID, model, vec,
		)
	} else {
		_, err = t.tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (phrase_id, model, embedding) VALUES ($1, $2, $3)
			 ON CONFLICT (phrase_id, model) DO NOTHING`, t.p.embeddingTable),
			phraseID, model, vec,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to store embedding for phrase %d: %w", phraseID, err)
	}
	return nil
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
