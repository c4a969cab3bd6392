// internal/apitypes/apitypes.go
// Package apitypes contains the HTTP API's request and response bodies.
// It has no storage dependencies so the client can import it without cgo.
package apitypes

import "github.com/MereWhiplash/phrase-embedder/internal/types"

// StartRunRequest is the optional body of POST /v1/runs
type StartRunRequest struct {
	MaxBatches int `json:"max_batches,omitempty"`
}

// RunResponse wraps a run record
type RunResponse struct {
	Run *types.Run `json:"run"`
}

// StatusResponse wraps coverage for one model
type StatusResponse struct {
	Status    *types.Status `json:"status"`
	ActiveRun *types.Run    `json:"active_run,omitempty"`
}

// ErrorResponse is returned for every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model,omitempty"`
}
