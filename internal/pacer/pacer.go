// Package pacer bounds how fast the worker starts batches against storage.
package pacer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the pause between batches for the fixed strategy
const DefaultInterval = 100 * time.Millisecond

// Pacer blocks between batches
type Pacer interface {
	// Wait returns when the next batch may start, or with ctx's error if ctx ends first
	Wait(ctx context.Context) error
}

// Config selects and tunes a pacing strategy
type Config struct {
	Strategy string // "fixed", "rate", "none"

	// Fixed
	Interval time.Duration

	// Rate, in batches per second
	Rate  float64
	Burst int
}

// New creates a Pacer based on config
func New(cfg Config) (Pacer, error) {
	switch cfg.Strategy {
	case "fixed", "":
		interval := cfg.Interval
		if interval == 0 {
			interval = DefaultInterval
		}
		if interval < 0 {
			return nil, fmt.Errorf("invalid pacing interval %s", interval)
		}
		return Fixed(interval), nil

	case "rate":
		if cfg.Rate <= 0 {
			return nil, fmt.Errorf("pacing rate must be positive, got %g", cfg.Rate)
		}
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		return NewLimiter(cfg.Rate, burst), nil

	case "none":
		return None{}, nil

	default:
		return nil, fmt.Errorf("unknown pacing strategy: %s", cfg.Strategy)
	}
}

// Fixed sleeps for a constant interval
type Fixed time.Duration

func (f Fixed) Wait(ctx context.Context) error {
	t := time.NewTimer(time.Duration(f))
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Limiter paces batches with a token bucket
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter allows perSecond batches per second with the given burst
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// None does not pause
type None struct{}

func (None) Wait(ctx context.Context) error {
	return ctx.Err()
}
