// internal/api/types.go
package api

import "github.com/MereWhiplash/phrase-embedder/internal/apitypes"

// Re-export types from internal/apitypes so handlers and their tests can
// refer to them as api.X.
type (
	StartRunRequest = apitypes.StartRunRequest
	RunResponse     = apitypes.RunResponse
	StatusResponse  = apitypes.StatusResponse
	ErrorResponse   = apitypes.ErrorResponse
	HealthResponse  = apitypes.HealthResponse
)
