// internal/types/types.go
// Package types contains shared data types that have no CGO dependencies.
// This allows the API client and MCP tools to use them without pulling in sqlite-vec.
package types

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a run is not found
var ErrNotFound = errors.New("not found")

// ErrRunInProgress is returned when a run is requested while another one is active
var ErrRunInProgress = errors.New("embedding run already in progress")

// Phrase is a unit of text eligible for embedding.
// Phrases are created and deactivated by an external system; this module only reads them.
type Phrase struct {
	ID     int64  `json:"id"`
	Text   string `json:"text"`
	Lang   string `json:"lang,omitempty"`
	Active bool   `json:"active"`
}

// Embedding associates a vector with a phrase for one model.
// At most one Embedding exists per (PhraseID, Model).
type Embedding struct {
	PhraseID int64     `json:"phrase_id"`
	Model    string    `json:"model"`
	Vector   []float32 `json:"vector"`
}

// Status summarizes embedding coverage for a model
type Status struct {
	Model         string `json:"model"`
	ActivePhrases int64  `json:"active_phrases"`
	Embedded      int64  `json:"embedded"`
	Pending       int64  `json:"pending"`
}

// RunState describes the lifecycle of a background run
type RunState string

const (
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
)

// Run is the record of one invocation of the batch loop
type Run struct {
	ID         string     `json:"id"`
	Model      string     `json:"model"`
	State      RunState   `json:"state"`
	Batches    int        `json:"batches"`
	Phrases    int        `json:"phrases"`
	Exhausted  bool       `json:"exhausted"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
