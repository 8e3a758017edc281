package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/vecingest/internal/types"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text:latest"
)

// OllamaConfig represents the configuration for an Ollama embedding backend.
type OllamaConfig struct {
	Model   string
	BaseURL string // Ollama server URL
}

// Ollama generates embeddings through langchaingo's Ollama client.
// It does not expose a health probe.
type Ollama struct {
	config OllamaConfig
	llm    *ollama.LLM
}

var _ types.Embedder = (*Ollama)(nil)

func NewOllama(config OllamaConfig) (*Ollama, error) {
	if config.Model == "" {
		config.Model = DefaultOllamaModel
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultOllamaURL
	}

	llm, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama embedder: %w", err)
	}

	return &Ollama{
		config: config,
		llm:    llm,
	}, nil
}

func (o *Ollama) EmbedText(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := o.llm.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return embeddings[0], nil
}
