// internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MereWhiplash/phrase-embedder/internal/types"
)

// SQLite implements Storage on a single SQLite file. The driver is chosen at
// build time: mattn/go-sqlite3 with sqlite-vec under cgo, modernc.org/sqlite otherwise.
type SQLite struct {
	conn *sql.DB
}

// NewSQLite creates a new SQLite storage
func NewSQLite(path string) (*SQLite, error) {
	conn, err := openSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; transactions are IMMEDIATE so a batch holds the write lock from its first read.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &SQLite{conn: conn}, nil
}

func (s *SQLite) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS phrase (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text TEXT NOT NULL,
			lang TEXT,
			active BOOLEAN NOT NULL DEFAULT TRUE
		);

		CREATE TABLE IF NOT EXISTS phrase_embedding (
			phrase_id INTEGER NOT NULL REFERENCES phrase(id) ON DELETE CASCADE,
			model TEXT NOT NULL,
			embedding BLOB NOT NULL,
			dims INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (phrase_id, model)
		);

		CREATE INDEX IF NOT EXISTS idx_phrase_active ON phrase(active);
		CREATE INDEX IF NOT EXISTS idx_phrase_embedding_model ON phrase_embedding(model);
	`
	_, err := s.conn.ExecContext(ctx, schema)
	return err
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

func (s *SQLite) Status(ctx context.Context, model string) (*types.Status, error) {
	st := &types.Status{Model: model}
	err := s.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM phrase WHERE active = TRUE),
			(SELECT count(*) FROM phrase_embedding e
			   JOIN phrase p ON p.id = e.phrase_id
			  WHERE e.model = ? AND p.active = TRUE)
	`, model).Scan(&st.ActivePhrases, &st.Embedded)
	if err != nil {
		return nil, fmt.Errorf("failed to count phrases: %w", err)
	}
	st.Pending = st.ActivePhrases - st.Embedded
	return st, nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) FetchBatch(ctx context.Context, model string, limit int) ([]types.Phrase, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("invalid batch limit %d", limit)
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT p.id, p.text, p.lang
		FROM phrase p
		LEFT JOIN phrase_embedding e
		  ON e.phrase_id = p.id AND e.model = ?
		WHERE e.phrase_id IS NULL
		  AND p.active = TRUE
		ORDER BY p.id
		LIMIT ?
	`, model, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch phrases: %w", err)
	}
	defer rows.Close()

	phrases := make([]types.Phrase, 0, limit)
	for rows.Next() {
		var ph types.Phrase
		var lang sql.NullString
		if err := rows.Scan(&ph.ID, &ph.Text, &lang); err != nil {
			return nil, fmt.Errorf("failed to scan phrases: %w", err)
		}
		if lang.Valid {
			ph.Lang = lang.String
		}
		ph.Active = true
		phrases = append(phrases, ph)
	}

	return phrases, rows.Err()
}

func (t *sqliteTx) Store(ctx context.Context, phraseID int64, model string, vector []float32) error {
	blob, err := serializeVector(vector)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding: %w", err)
	}

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO phrase_embedding (phrase_id, model, embedding, dims) VALUES (?, ?, ?, ?)
		 ON CONFLICT (phrase_id, model) DO NOTHING`,
		phraseID, model, blob, len(vector),
	)
	if err != nil {
		return fmt.Errorf("failed to store embedding for phrase %d: %w", phraseID, err)
	}
	return nil
}

func (t *sqliteTx) Commit(ctx context.Context) error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
