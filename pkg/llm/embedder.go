package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xhad/vecingest/internal/models"
	"github.com/xhad/vecingest/internal/types"
	"golang.org/x/time/rate"
)

const DefaultEmbedTimeout = 30 * time.Second

// EmbedderConfig represents the configuration for the document embedder.
type EmbedderConfig struct {
	Timeout   time.Duration // per request
	RateLimit float64       // requests per second, 0 disables limiting
	Logger    *slog.Logger
}

// Embedder attaches vectors to documents. It is best effort: a failed
// request yields a NotEmbedded outcome and never an error.
type Embedder struct {
	config  EmbedderConfig
	backend types.Embedder
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewEmbedder(backend types.Embedder, config EmbedderConfig) (*Embedder, error) {
	if backend == nil {
		return nil, fmt.Errorf("embedding backend required")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultEmbedTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	e := &Embedder{
		config:  config,
		backend: backend,
		logger:  config.Logger.With("component", "embedder"),
	}
	if config.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return e, nil
}

// Backend returns the wrapped embedding backend.
func (e *Embedder) Backend() types.Embedder {
	return e.backend
}

func (e *Embedder) Embed(ctx context.Context, doc models.Document) models.Outcome {
	vector, err := e.embed(ctx, doc.Content)
	if err != nil {
		e.logger.Warn("embedding failed", "source", doc.Metadata.Source, "err", err)
		doc.Embedding = []float32{}
		return models.Outcome{Kind: models.NotEmbedded, Document: doc, Err: err}
	}

	doc.Embedding = vector
	return models.Outcome{Kind: models.Embedded, Document: doc}
}

func (e *Embedder) embed(ctx context.Context, text string) ([]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	vector, err := e.backend.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vector, nil
}
