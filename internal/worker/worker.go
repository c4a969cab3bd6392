// Package worker drives the incremental embedding loop: fetch a bounded batch
// of phrases lacking an embedding, embed it, persist it, commit, and repeat
// until a fetch comes back empty.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MereWhiplash/phrase-embedder/internal/embedder"
	"github.com/MereWhiplash/phrase-embedder/internal/pacer"
	"github.com/MereWhiplash/phrase-embedder/internal/storage"
	"github.com/MereWhiplash/phrase-embedder/internal/types"
)

// DefaultBatchSize bounds how many phrases one batch holds in memory
const DefaultBatchSize = 128

var (
	// ErrProvider marks a batch aborted by the embedding provider
	ErrProvider = errors.New("embedding failed")
	// ErrStorage marks a batch aborted by the storage backend
	ErrStorage = errors.New("storage failed")
)

// State is the phase the driver is in
type State int

const (
	Idle State = iota
	Fetching
	Embedding
	Persisting
	Pacing
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Embedding:
		return "embedding"
	case Persisting:
		return "persisting"
	case Pacing:
		return "pacing"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// BatchReport describes one committed batch
type BatchReport struct {
	Batch   int
	Phrases int
	FirstID int64
	LastID  int64
	Elapsed time.Duration
}

// Result summarizes a Run
type Result struct {
	Batches int
	Phrases int
	// Exhausted is true when the run stopped because no eligible phrase remained
	Exhausted bool
	Elapsed   time.Duration
}

// Option configures a Driver
type Option func(*Driver)

// WithBatchSize sets the maximum number of phrases per batch
func WithBatchSize(n int) Option {
	return func(d *Driver) { d.batchSize = n }
}

// WithMaxBatches stops a run after n committed batches. Zero means no limit.
func WithMaxBatches(n int) Option {
	return func(d *Driver) { d.maxBatches = n }
}

// WithLogger sets the logger for progress and state transitions
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithOnBatch registers a callback invoked after every commit. Callbacks run
// in registration order.
func WithOnBatch(fn func(BatchReport)) Option {
	return func(d *Driver) { d.onBatch = append(d.onBatch, fn) }
}

// Driver runs the batch loop for the embedder's model.
// A Driver is not safe for concurrent use.
type Driver struct {
	store    storage.Storage
	embedder embedder.Embedder
	pacer    pacer.Pacer

	batchSize  int
	maxBatches int
	logger     *slog.Logger
	onBatch    []func(BatchReport)

	state   State
	batches int
}

// New creates a Driver
func New(store storage.Storage, emb embedder.Embedder, p pacer.Pacer, opts ...Option) (*Driver, error) {
	d := &Driver{
		store:     store,
		embedder:  emb,
		pacer:     p,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", d.batchSize)
	}
	if d.maxBatches < 0 {
		return nil, fmt.Errorf("max batches must not be negative, got %d", d.maxBatches)
	}
	if d.pacer == nil {
		d.pacer = pacer.None{}
	}
	return d, nil
}

// State returns the current phase
func (d *Driver) State() State {
	return d.state
}

func (d *Driver) setState(s State) {
	d.logger.Debug("state transition", "from", d.state.String(), "to", s.String())
	d.state = s
}

// Run processes batches until no eligible phrase remains, MaxBatches is
// reached, or a batch fails. A failed batch is rolled back and its error
// returned; batches committed before it stay committed.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	var res Result

	for {
		if d.maxBatches > 0 && res.Batches >= d.maxBatches {
			d.logger.Info("batch limit reached", "batches", res.Batches)
			break
		}

		if res.Batches > 0 {
			d.setState(Pacing)
			if err := d.pacer.Wait(ctx); err != nil {
				res.Elapsed = time.Since(start)
				return res, err
			}
		}

		report, err := d.Step(ctx)
		if err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}
		if report.Phrases == 0 {
			res.Exhausted = true
			break
		}

		res.Batches++
		res.Phrases += report.Phrases
	}

	res.Elapsed = time.Since(start)
	return res, nil
}

// Step runs a single fetch/embed/persist/commit cycle. A report with zero
// phrases means no eligible phrase remained and nothing was written.
func (d *Driver) Step(ctx context.Context) (BatchReport, error) {
	start := time.Now()
	model := d.embedder.Model()

	d.setState(Fetching)
	tx, err := d.store.Begin(ctx)
	if err != nil {
		return BatchReport{}, d.fail(ctx, ErrStorage, err)
	}
	// Rollback must still reach the backend when ctx is cancelled; after Commit it is a no-op.
	defer tx.Rollback(context.WithoutCancel(ctx))

	phrases, err := tx.FetchBatch(ctx, model, d.batchSize)
	if err != nil {
		return BatchReport{}, d.fail(ctx, ErrStorage, err)
	}
	if len(phrases) == 0 {
		d.setState(Done)
		return BatchReport{}, nil
	}

	d.setState(Embedding)
	texts := make([]string, len(phrases))
	for i, p := range phrases {
		texts[i] = p.Text
	}
	vectors, err := d.embedder.Embed(ctx, texts)
	if err != nil {
		return BatchReport{}, d.fail(ctx, ErrProvider, err)
	}
	if err := d.checkVectors(phrases, vectors); err != nil {
		return BatchReport{}, d.fail(ctx, ErrProvider, err)
	}

	d.setState(Persisting)
	for i, p := range phrases {
		if err := tx.Store(ctx, p.ID, model, vectors[i]); err != nil {
			return BatchReport{}, d.fail(ctx, ErrStorage, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return BatchReport{}, d.fail(ctx, ErrStorage, fmt.Errorf("failed to commit: %w", err))
	}

	d.batches++
	report := BatchReport{
		Batch:   d.batches,
		Phrases: len(phrases),
		FirstID: phrases[0].ID,
		LastID:  phrases[len(phrases)-1].ID,
		Elapsed: time.Since(start),
	}
	d.logger.Info("Embedded rows",
		"model", model,
		"batch", report.Batch,
		"rows", report.Phrases,
		"first_id", report.FirstID,
		"last_id", report.LastID,
		"elapsed", report.Elapsed,
	)
	for _, fn := range d.onBatch {
		fn(report)
	}
	return report, nil
}

// fail classifies a batch error. Cancellation is reported as the context's
// own error rather than blamed on the provider or storage.
func (d *Driver) fail(ctx context.Context, kind, err error) error {
	d.logger.Error("batch aborted", "state", d.state.String(), "error", err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// checkVectors rejects provider output that cannot be paired positionally
// with the fetched phrases.
func (d *Driver) checkVectors(phrases []types.Phrase, vectors [][]float32) error {
	if len(vectors) != len(phrases) {
		return fmt.Errorf("provider returned %d vectors for %d phrases", len(vectors), len(phrases))
	}

	dims := d.embedder.Dimensions()
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("provider returned an empty vector for phrase %d", phrases[i].ID)
		}
		if dims == 0 {
			dims = len(v)
		}
		if len(v) != dims {
			return fmt.Errorf("phrase %d: expected %d dimensions, got %d", phrases[i].ID, dims, len(v))
		}
	}
	return nil
}
