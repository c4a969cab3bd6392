// internal/service/service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MereWhiplash/phrase-embedder/internal/embedder"
	"github.com/MereWhiplash/phrase-embedder/internal/pacer"
	"github.com/MereWhiplash/phrase-embedder/internal/storage"
	"github.com/MereWhiplash/phrase-embedder/internal/types"
	"github.com/MereWhiplash/phrase-embedder/internal/worker"
)

// maxRunHistory bounds how many finished runs are kept for GetRun
const maxRunHistory = 50

// Service contains the business logic shared by the CLI, HTTP API and MCP tools
type Service struct {
	storage  storage.Storage
	embedder embedder.Embedder
	pacer    pacer.Pacer
	opts     []worker.Option
	logger   *slog.Logger

	mu     sync.Mutex
	runs   map[string]*types.Run
	order  []string
	active string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Service. opts are applied to every driver the service builds.
func New(store storage.Storage, emb embedder.Embedder, p pacer.Pacer, logger *slog.Logger, opts ...worker.Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		storage:  store,
		embedder: emb,
		pacer:    p,
		opts:     opts,
		logger:   logger,
		runs:     make(map[string]*types.Run),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Model returns the identifier of the configured embedding model
func (s *Service) Model() string {
	return s.embedder.Model()
}

// Status reports coverage for model, or the configured model when empty
func (s *Service) Status(ctx context.Context, model string) (*types.Status, error) {
	if model == "" {
		model = s.embedder.Model()
	}
	st, err := s.storage.Status(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("failed to query status: %w", err)
	}
	return st, nil
}

// Ping checks storage connectivity
func (s *Service) Ping(ctx context.Context) error {
	return s.storage.Ping(ctx)
}

// Run executes the batch loop synchronously. maxBatches of zero keeps the
// configured limit. The returned run record is filled in even on failure.
func (s *Service) Run(ctx context.Context, maxBatches int) (*types.Run, error) {
	run, driver, err := s.begin(maxBatches)
	if err != nil {
		return nil, err
	}
	err = s.execute(ctx, run.ID, driver)
	return s.snapshot(run.ID), err
}

// StartRun launches the batch loop in the background and returns its record
// in the running state. Background runs stop when the service is closed.
func (s *Service) StartRun(maxBatches int) (*types.Run, error) {
	run, driver, err := s.begin(maxBatches)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.execute(s.ctx, run.ID, driver); err != nil {
			s.logger.Error("background run failed", "run_id", run.ID, "error", err)
		}
	}()
	return run, nil
}

// GetRun returns a run by ID
func (s *Service) GetRun(id string) (*types.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

// ActiveRun returns the run in progress, if any
func (s *Service) ActiveRun() (*types.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == "" {
		return nil, false
	}
	cp := *s.runs[s.active]
	return &cp, true
}

// Close cancels background runs, waits for them and closes storage
func (s *Service) Close() error {
	s.cancel()
	s.wg.Wait()
	return s.storage.Close()
}

func (s *Service) begin(maxBatches int) (*types.Run, *worker.Driver, error) {
	if maxBatches < 0 {
		return nil, nil, fmt.Errorf("max batches must not be negative, got %d", maxBatches)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" {
		return nil, nil, types.ErrRunInProgress
	}

	run := &types.Run{
		ID:        uuid.NewString(),
		Model:     s.embedder.Model(),
		State:     types.RunRunning,
		StartedAt: time.Now().UTC(),
	}

	opts := append([]worker.Option{}, s.opts...)
	opts = append(opts,
		worker.WithLogger(s.logger.With("run_id", run.ID)),
		worker.WithOnBatch(func(r worker.BatchReport) { s.progress(run.ID, r) }),
	)
	if maxBatches > 0 {
		opts = append(opts, worker.WithMaxBatches(maxBatches))
	}
	driver, err := worker.New(s.storage, s.embedder, s.pacer, opts...)
	if err != nil {
		return nil, nil, err
	}

	s.runs[run.ID] = run
	s.order = append(s.order, run.ID)
	s.active = run.ID
	s.prune()

	cp := *run
	return &cp, driver, nil
}

func (s *Service) execute(ctx context.Context, id string, driver *worker.Driver) error {
	res, err := driver.Run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	run := s.runs[id]
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Batches = res.Batches
	run.Phrases = res.Phrases
	run.Exhausted = res.Exhausted
	if err != nil {
		run.State = types.RunFailed
		run.Error = err.Error()
	} else {
		run.State = types.RunSucceeded
	}
	s.active = ""
	return err
}

func (s *Service) progress(id string, r worker.BatchReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.Batches = r.Batch
		run.Phrases += r.Phrases
	}
}

func (s *Service) snapshot(id string) *types.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.runs[id]
	return &cp
}

// prune drops the oldest finished runs beyond maxRunHistory. Caller holds mu.
func (s *Service) prune() {
	for len(s.order) > maxRunHistory {
		oldest := s.order[0]
		if oldest == s.active {
			return
		}
		delete(s.runs, oldest)
		s.order = s.order[1:]
	}
}
