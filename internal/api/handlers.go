// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MereWhiplash/phrase-embedder/internal/service"
	"github.com/MereWhiplash/phrase-embedder/internal/types"
)

// Handlers holds HTTP handler dependencies
type Handlers struct {
	svc *service.Service
}

// NewHandlers creates new API handlers
func NewHandlers(svc *service.Service) *Handlers {
	return &Handlers{svc: svc}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, ErrorResponse{Error: msg})
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		h.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		return
	}
	h.respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Model: h.svc.Model()})
}

// Status handles GET /v1/status
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context(), r.URL.Query().Get("model"))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := StatusResponse{Status: st}
	if run, ok := h.svc.ActiveRun(); ok {
		resp.ActiveRun = run
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// StartRun handles POST /v1/runs
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.MaxBatches < 0 {
		h.respondError(w, http.StatusBadRequest, "max_batches must not be negative")
		return
	}

	run, err := h.svc.StartRun(req.MaxBatches)
	if errors.Is(err, types.ErrRunInProgress) {
		h.respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Location", "/v1/runs/"+run.ID)
	h.respondJSON(w, http.StatusAccepted, RunResponse{Run: run})
}

// GetRun handles GET /v1/runs/{id}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.GetRun(chi.URLParam(r, "id"))
	if errors.Is(err, types.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, RunResponse{Run: run})
}
