// internal/embedder/embedder.go
package embedder

import (
	"context"
	"math"
)

// Embedder generates unit-length vector embeddings for text.
//
// Implementations hold model state and are constructed once per process, then
// passed to the worker. They are not required to be safe for concurrent use.
type Embedder interface {
	// Embed returns one vector per input text, in input order, each L2-normalized
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Model returns the model identifier embeddings are keyed by
	Model() string
	// Dimensions returns the vector width, or 0 if not known until the first call
	Dimensions() int
}

// Normalize scales v to unit length in place and returns it.
// A zero vector stays zero.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + 1e-12
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// Norm returns the L2 norm of v
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
