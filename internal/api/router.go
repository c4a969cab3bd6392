// internal/api/router.go
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MereWhiplash/phrase-embedder/internal/service"
)

// RouterConfig configures NewRouter
type RouterConfig struct {
	Logger *slog.Logger
	// RateLimit is requests per minute per client IP; zero disables limiting
	RateLimit int
}

// NewRouter wires the middleware stack and routes
func NewRouter(svc *service.Service, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	handlers := NewHandlers(svc)

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(MaxBodySize)
	if cfg.RateLimit > 0 {
		r.Use(NewRateLimiter(cfg.RateLimit, time.Minute).Middleware)
	}

	r.Get("/health", handlers.Health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", handlers.Status)
		r.Post("/runs", handlers.StartRun)
		r.Get("/runs/{id}", handlers.GetRun)
	})
	return r
}
