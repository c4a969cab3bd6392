package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// DefaultHashDimensions is the vector width of the hash embedder when none is configured.
const DefaultHashDimensions = 384

// Hash is a deterministic feature-hashing embedder. It needs no model files or
// network access, which makes it useful for offline runs and tests. Similar
// texts share tokens and trigrams, so cosine similarity stays meaningful
// for near-duplicates.
type Hash struct {
	model string
	dims  int
}

// NewHash creates a hash embedder producing vectors of the given width
func NewHash(model string, dims int) (*Hash, error) {
	if dims == 0 {
		dims = DefaultHashDimensions
	}
	if dims < 0 {
		return nil, fmt.Errorf("invalid dimensions %d", dims)
	}
	return &Hash{model: model, dims: dims}, nil
}

func (h *Hash) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *Hash) vector(text string) []float32 {
	v := make([]float32, h.dims)
	normalized := strings.ToLower(strings.TrimSpace(text))

	for _, tok := range strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		h.add(v, "w:"+tok, 1)
	}

	runes := []rune(" " + normalized + " ")
	for i := 0; i+3 <= len(runes); i++ {
		h.add(v, "t:"+string(runes[i:i+3]), 0.5)
	}

	// Empty input still yields a unit vector
	if Norm(v) == 0 {
		v[0] = 1
		return v
	}
	return Normalize(v)
}

func (h *Hash) add(v []float32, feature string, weight float32) {
	f := fnv.New64a()
	f.Write([]byte(feature))
	sum := f.Sum64()

	idx := int(sum % uint64(h.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}

func (h *Hash) Model() string {
	return h.model
}

func (h *Hash) Dimensions() int {
	return h.dims
}
