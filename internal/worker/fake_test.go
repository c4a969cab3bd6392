package worker_test

import (
	"context"
)

// countingPacer records how often the driver paused
type countingPacer struct {
	waits int
	err   error
}

func (p *countingPacer) Wait(ctx context.Context) error {
	p.waits++
	return p.err
}

// failingEmbedder fails every call
type failingEmbedder struct {
	err error
}

func (f *failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, f.err
}
func (f *failingEmbedder) Model() string   { return "m1" }
func (f *failingEmbedder) Dimensions() int { return 0 }

// shortEmbedder drops the last vector
type shortEmbedder struct{}

func (shortEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts)-1)
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}
func (shortEmbedder) Model() string   { return "m1" }
func (shortEmbedder) Dimensions() int { return 1 }

// ragged returns vectors of differing widths
type raggedEmbedder struct{}

func (raggedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, i+1)
		out[i][0] = 1
	}
	return out, nil
}
func (raggedEmbedder) Model() string   { return "m1" }
func (raggedEmbedder) Dimensions() int { return 0 }
