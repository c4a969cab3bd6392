// Package storagetest provides an in-memory storage.Storage for tests.
package storagetest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/MereWhiplash/phrase-embedder/internal/storage"
	"github.com/MereWhiplash/phrase-embedder/internal/types"
)

// Key identifies one embedding
type Key struct {
	PhraseID int64
	Model    string
}

// Store keeps phrases and embeddings in memory. Writes staged in a Tx become
// visible only on Commit, mirroring the SQL backends.
type Store struct {
	mu         sync.Mutex
	phrases    []types.Phrase
	embeddings map[Key][]float32

	fetchSizes []int
	writes     map[Key]int
	commits    int
	rollbacks  int

	// Injected failures
	BeginErr  error
	StoreErr  error
	CommitErr error
}

// New creates a Store holding phrases
func New(phrases ...types.Phrase) *Store {
	s := &Store{
		embeddings: make(map[Key][]float32),
		writes:     make(map[Key]int),
	}
	s.AddPhrases(phrases...)
	return s
}

// Active builds active phrases with ids 1..n
func Active(texts ...string) []types.Phrase {
	out := make([]types.Phrase, len(texts))
	for i, text := range texts {
		out[i] = types.Phrase{ID: int64(i + 1), Text: text, Active: true}
	}
	return out
}

// AddPhrases inserts phrases, keeping id order
func (s *Store) AddPhrases(phrases ...types.Phrase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phrases = append(s.phrases, phrases...)
	sort.Slice(s.phrases, func(i, j int) bool { return s.phrases[i].ID < s.phrases[j].ID })
}

// Embedding returns the committed vector for a key
func (s *Store) Embedding(phraseID int64, model string) ([]float32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.embeddings[Key{phraseID, model}]
	return v, ok
}

// Embeddings returns a copy of all committed embeddings
func (s *Store) Embeddings() map[Key][]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Key][]float32, len(s.embeddings))
	for k, v := range s.embeddings {
		out[k] = v
	}
	return out
}

// Writes returns how many committed writes each key received
func (s *Store) Writes() map[Key]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Key]int, len(s.writes))
	for k, v := range s.writes {
		out[k] = v
	}
	return out
}

// FetchSizes returns the size of every FetchBatch result, in call order
func (s *Store) FetchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.fetchSizes...)
}

// ResetFetchSizes forgets recorded fetches
func (s *Store) ResetFetchSizes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchSizes = nil
}

func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *Store) Rollbacks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbacks
}

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	if s.BeginErr != nil {
		return nil, s.BeginErr
	}
	return &tx{s: s, staged: make(map[Key][]float32)}, nil
}

func (s *Store) Status(ctx context.Context, model string) (*types.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &types.Status{Model: model}
	for _, p := range s.phrases {
		if !p.Active {
			continue
		}
		st.ActivePhrases++
		if _, ok := s.embeddings[Key{p.ID, model}]; ok {
			st.Embedded++
		}
	}
	st.Pending = st.ActivePhrases - st.Embedded
	return st, nil
}

func (s *Store) Migrate(ctx context.Context) error { return nil }
func (s *Store) Ping(ctx context.Context) error    { return nil }
func (s *Store) Close() error                      { return nil }

type tx struct {
	s      *Store
	staged map[Key][]float32
	order  []Key
	done   bool
}

func (t *tx) FetchBatch(ctx context.Context, model string, limit int) ([]types.Phrase, error) {
	if limit <= 0 {
		return nil, errors.New("invalid batch limit")
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	out := []types.Phrase{}
	for _, p := range t.s.phrases {
		if len(out) == limit {
			break
		}
		if !p.Active {
			continue
		}
		if _, ok := t.s.embeddings[Key{p.ID, model}]; ok {
			continue
		}
		out = append(out, p)
	}
	t.s.fetchSizes = append(t.s.fetchSizes, len(out))
	return out, nil
}

func (t *tx) Store(ctx context.Context, phraseID int64, model string, vector []float32) error {
	if t.s.StoreErr != nil {
		return t.s.StoreErr
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	k := Key{phraseID, model}
	if _, ok := t.s.embeddings[k]; ok {
		return nil
	}
	if _, ok := t.staged[k]; ok {
		return nil
	}
	t.staged[k] = vector
	t.order = append(t.order, k)
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.s.CommitErr != nil {
		return t.s.CommitErr
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for _, k := range t.order {
		t.s.embeddings[k] = t.staged[k]
		t.s.writes[k]++
	}
	t.done = true
	t.s.commits++
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.done = true
	t.s.rollbacks++
	return nil
}
