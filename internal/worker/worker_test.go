package worker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MereWhiplash/phrase-embedder/internal/embedder"
	"github.com/MereWhiplash/phrase-embedder/internal/storage/storagetest"
	"github.com/MereWhiplash/phrase-embedder/internal/types"
	"github.com/MereWhiplash/phrase-embedder/internal/worker"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func hashEmbedder(t *testing.T) *embedder.Hash {
	t.Helper()
	h, err := embedder.NewHash("m1", 32)
	require.NoError(t, err)
	return h
}

func newDriver(t *testing.T, store *storagetest.Store, emb embedder.Embedder, p *countingPacer, opts ...worker.Option) *worker.Driver {
	t.Helper()
	opts = append([]worker.Option{worker.WithLogger(quiet)}, opts...)
	d, err := worker.New(store, emb, p, opts...)
	require.NoError(t, err)
	return d
}

func TestRun_Scenario(t *testing.T) {
	store := storagetest.New(
		types.Phrase{ID: 1, Text: "cat", Active: true},
		types.Phrase{ID: 2, Text: "dog", Active: true},
		types.Phrase{ID: 3, Text: "cat", Active: false},
	)
	d := newDriver(t, store, hashEmbedder(t), &countingPacer{}, worker.WithBatchSize(10))

	res, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{2, 0}, store.FetchSizes())
	assert.Equal(t, 1, res.Batches)
	assert.Equal(t, 2, res.Phrases)
	assert.True(t, res.Exhausted)
	assert.Equal(t, worker.Done, d.State())

	embeddings := store.Embeddings()
	assert.Len(t, embeddings, 2)
	assert.Contains(t, embeddings, storagetest.Key{PhraseID: 1, Model: "m1"})
	assert.Contains(t, embeddings, storagetest.Key{PhraseID: 2, Model: "m1"})
	assert.NotContains(t, embeddings, storagetest.Key{PhraseID: 3, Model: "m1"})
}

func TestRun_BatchBoundedness(t *testing.T) {
	store := storagetest.New(storagetest.Active("a", "b", "c", "d", "e")...)
	p := &countingPacer{}
	d := newDriver(t, store, hashEmbedder(t), p, worker.WithBatchSize(2))

	res, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1, 0}, store.FetchSizes())
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 5, res.Phrases)
	assert.Equal(t, 3, store.Commits())
	// Paused before each fetch after the first, never after DONE
	assert.Equal(t, 3, p.waits)
}

func TestRun_Idempotent(t *testing.T) {
	store := storagetest.New(storagetest.Active("a", "b", "c")...)
	emb := hashEmbedder(t)

	_, err := newDriver(t, store, emb, &countingPacer{}, worker.WithBatchSize(2)).Run(context.Background())
	require.NoError(t, err)
	first := store.Embeddings()

	store.ResetFetchSizes()
	res, err := newDriver(t, store, emb, &countingPacer{}, worker.WithBatchSize(2)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.Batches)
	assert.True(t, res.Exhausted)
	assert.Equal(t, []int{0}, store.FetchSizes())
	assert.Equal(t, first, store.Embeddings())
	for k, n := range store.Writes() {
		assert.Equal(t, 1, n, "phrase %d written more than once", k.PhraseID)
	}
}

func TestRun_Completeness(t *testing.T) {
	phrases := storagetest.Active("a", "b", "c", "d", "e", "f", "g")
	phrases[3].Active = false
	store := storagetest.New(phrases...)

	_, err := newDriver(t, store, hashEmbedder(t), &countingPacer{}, worker.WithBatchSize(3)).Run(context.Background())
	require.NoError(t, err)

	st, err := store.Status(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), st.ActivePhrases)
	assert.Equal(t, int64(6), st.Embedded)
	assert.Zero(t, st.Pending)

	for _, v := range store.Embeddings() {
		assert.InDelta(t, 1.0, embedder.Norm(v), 1e-5)
	}
}

func TestRun_ModelsAreIndependent(t *testing.T) {
	store := storagetest.New(storagetest.Active("a", "b")...)

	_, err := newDriver(t, store, hashEmbedder(t), &countingPacer{}).Run(context.Background())
	require.NoError(t, err)

	other, err := embedder.NewHash("m2", 16)
	require.NoError(t, err)
	store.ResetFetchSizes()
	res, err := newDriver(t, store, other, &countingPacer{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Phrases)
	assert.Len(t, store.Embeddings(), 4)
}

func TestRun_ProviderFailure(t *testing.T) {
	store := storagetest.New(storagetest.Active("a", "b", "c")...)
	oom := errors.New("out of memory")
	d := newDriver(t, store, &failingEmbedder{err: oom}, &countingPacer{})

	res, err := d.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, worker.ErrProvider)
	assert.ErrorIs(t, err, oom)
	assert.Zero(t, res.Batches)

	assert.Empty(t, store.Embeddings())
	assert.Zero(t, store.Commits())
	assert.Equal(t, 1, store.Rollbacks())

	// A retry re-selects the same phrases
	store.ResetFetchSizes()
	_, err = newDriver(t, store, hashEmbedder(t), &countingPacer{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{3, 0}, store.FetchSizes())
}

func TestRun_VectorCountMismatch(t *testing.T) {
	store := storagetest.New(storagetest.Active("a", "b")...)
	d := newDriver(t, store, shortEmbedder{}, &countingPacer{})

	_, err := d.Run(context.Background())
	assert.ErrorIs(t, err, worker.ErrProvider)
	assert.Empty(t, store.Embeddings())
	assert.Zero(t, store.Commits())
}

func TestRun_InconsistentDimensions(t *testing.T) {
	store := storagetest.New(storagetest.Active("a", "b")...)
	d := newDriver(t, store, raggedEmbedder{}, &countingPacer{})

	_, err := d.Run(context.Background())
	assert.ErrorIs(t, err, worker.ErrProvider)
	assert.Empty(t, store.Embeddings())
}

func TestRun_StorageFailure(t *testing.T) {
	store := storagetest.New(storagetest.Active("a", "b")...)
	store.StoreErr = errors.New("connection reset")
	d := newDriver(t, store, hashEmbedder(t), &countingPacer{})

	_, err := d.Run(context.Background())
	assert.ErrorIs(t, err, worker.ErrStorage)
	assert.Empty(t, store.Embeddings())
	assert.Equal(t, 1, store.Rollbacks())
}

func TestRun_CommitFailure(t *testing.T) {
	store := storagetest.New(storagetest.Active("a")...)
	store.CommitErr = errors.New("serialization failure")
	d := newDriver(t, store, hashEmbedder(t), &countingPacer{})

	_, err := d.Run(context.Background())
	assert.ErrorIs(t, err, worker.ErrStorage)
	assert.Empty(t, store.Embeddings())
	assert.Equal(t, 1, store.Rollbacks())
}

func TestRun_BeginFailure(t *testing.T) {
	store := storagetest.New(storagetest.Active("a")...)
	store.BeginErr = errors.New("too many connections")
	d := newDriver(t, store, hashEmbedder(t), &countingPacer{})

	_, err := d.Run(context.Background())
	assert.ErrorIs(t, err, worker.ErrStorage)
}

func TestRun_MaxBatches(t *testing.T) {
	store := storagetest.New(storagetest.Active("a", "b", "c", "d", "e")...)
	p := &countingPacer{}
	d := newDriver(t, store, hashEmbedder(t), p, worker.WithBatchSize(2), worker.WithMaxBatches(2))

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Batches)
	assert.False(t, res.Exhausted)
	assert.Equal(t, []int{2, 2}, store.FetchSizes())
	assert.Equal(t, 1, p.waits)
}

func TestRun_PacerCancelled(t *testing.T) {
	store := storagetest.New(storagetest.Active("a", "b", "c")...)
	p := &countingPacer{err: context.Canceled}
	d := newDriver(t, store, hashEmbedder(t), p, worker.WithBatchSize(1))

	res, err := d.Run(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Batches)
	assert.Len(t, store.Embeddings(), 1)
}

func TestRun_ContextCancelled(t *testing.T) {
	store := storagetest.New(storagetest.Active("a")...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newDriver(t, store, hashEmbedder(t), &countingPacer{})
	_, err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, worker.ErrProvider)
	assert.Empty(t, store.Embeddings())
}

func TestRun_OnBatch(t *testing.T) {
	store := storagetest.New(storagetest.Active("a", "b", "c")...)
	var reports []worker.BatchReport
	d := newDriver(t, store, hashEmbedder(t), &countingPacer{},
		worker.WithBatchSize(2),
		worker.WithOnBatch(func(r worker.BatchReport) { reports = append(reports, r) }),
	)

	_, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, worker.BatchReport{Batch: 1, Phrases: 2, FirstID: 1, LastID: 2, Elapsed: reports[0].Elapsed}, reports[0])
	assert.Equal(t, 2, reports[1].Batch)
	assert.Equal(t, int64(3), reports[1].FirstID)
}

func TestStep_Empty(t *testing.T) {
	store := storagetest.New()
	d := newDriver(t, store, hashEmbedder(t), &countingPacer{})

	report, err := d.Step(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Phrases)
	assert.Equal(t, worker.Done, d.State())
	assert.Equal(t, 1, store.Rollbacks())
}

func TestNew_InvalidOptions(t *testing.T) {
	store := storagetest.New()
	_, err := worker.New(store, hashEmbedder(t), nil, worker.WithBatchSize(0))
	assert.Error(t, err)

	_, err = worker.New(store, hashEmbedder(t), nil, worker.WithMaxBatches(-1))
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "fetching", worker.Fetching.String())
	assert.Equal(t, "done", worker.Done.String())
	assert.Equal(t, "state(42)", worker.State(42).String())
}
