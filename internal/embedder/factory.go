package embedder

import "fmt"

// Config holds embedding provider configuration
type Config struct {
	Provider string // "ollama", "hash"

	// Model identifier, used both to select the model and to key stored embeddings
	Model string

	// Ollama
	OllamaURL string

	// Hash
	Dimensions int
}

// New creates an Embedder based on config
func New(cfg Config) (Embedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}

	switch cfg.Provider {
	case "ollama":
		if cfg.OllamaURL == "" {
			return nil, fmt.Errorf("ollama URL is required")
		}
		return NewOllama(cfg.OllamaURL, cfg.Model), nil

	case "hash":
		return NewHash(cfg.Model, cfg.Dimensions)

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
