package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/xhad/vecingest/internal/models"
	"github.com/xhad/vecingest/internal/types"
	"github.com/xhad/vecingest/pkg/llm"
	"github.com/xhad/vecingest/pkg/store"
	"golang.org/x/sync/errgroup"
)

const DefaultChannelSize = 256

// DeadLetters receives what the pipeline could not store.
type DeadLetters interface {
	PutDocument(ctx context.Context, doc models.Document, reason error) error
	PutPoints(ctx context.Context, points []models.Point, reason error) error
}

// Pipeline runs documents through an embedder into a batch buffer.
// Run must not be called concurrently on the same Pipeline.
type Pipeline struct {
	embedder    *llm.Embedder
	buffer      *store.Buffer
	probe       llm.ProbeFunc
	readiness   llm.BackoffConfig
	workers     int
	pool        *ants.Pool
	channelSize int
	tracker     *Tracker
	deadLetters DeadLetters
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithEmbedWorkers runs up to n embedding requests at once. Outcomes are
// still delivered in input order. Default is 1.
func WithEmbedWorkers(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			n = 1
		}
		p.workers = n
		return nil
	}
}

// WithChannelSize bounds the number of outcomes queued between the stages.
func WithChannelSize(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("channel size must be positive, got %d", n)
		}
		p.channelSize = n
		return nil
	}
}

// WithReadiness sets the backoff used while waiting for the inference
// service.
func WithReadiness(config llm.BackoffConfig) Option {
	return func(p *Pipeline) error {
		p.readiness = config
		return nil
	}
}

// WithProbe overrides the readiness probe. By default the embedding backend
// is probed when it implements types.HealthChecker.
func WithProbe(probe llm.ProbeFunc) Option {
	return func(p *Pipeline) error {
		p.probe = probe
		return nil
	}
}

func WithTracker(tracker *Tracker) Option {
	return func(p *Pipeline) error {
		if tracker != nil {
			p.tracker = tracker
		}
		return nil
	}
}

func WithDeadLetters(dl DeadLetters) Option {
	return func(p *Pipeline) error {
		p.deadLetters = dl
		return nil
	}
}

// NewPipeline creates a pipeline writing through buffer.
func NewPipeline(embedder *llm.Embedder, buffer *store.Buffer, opts ...Option) (*Pipeline, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if buffer == nil {
		return nil, ErrBufferRequired
	}

	p := &Pipeline{
		embedder:    embedder,
		buffer:      buffer,
		workers:     1,
		channelSize: DefaultChannelSize,
		tracker:     NewTracker(nil),
		logger:      slog.Default(),
	}
	if hc, ok := embedder.Backend().(types.HealthChecker); ok {
		p.probe = hc.Health
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "pipeline")
	if p.readiness.Logger == nil {
		p.readiness.Logger = p.logger
	}

	if p.workers > 1 {
		pool, err := ants.NewPool(p.workers)
		if err != nil {
			return nil, err
		}
		p.pool = pool
	}

	return p, nil
}

func (p *Pipeline) Tracker() *Tracker {
	return p.tracker
}

// Run waits for the inference service, prepares the collection and then
// processes docs. Per-document and per-batch failures only show up in the
// returned counters. The error is non-nil for startup failures and
// cancellation; whatever was embedded before a cancellation is still
// flushed.
func (p *Pipeline) Run(ctx context.Context, docs []models.Document) (Snapshot, error) {
	if err := p.start(ctx); err != nil {
		return p.tracker.Snapshot(), err
	}

	start := time.Now()
	p.logger.Info("starting run", "documents", len(docs), "workers", p.workers)

	outcomes := make(chan models.Outcome, p.channelSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(outcomes)
		if p.pool != nil {
			return p.produceOrdered(gctx, docs, outcomes)
		}
		return p.produce(gctx, docs, outcomes)
	})

	g.Go(func() error {
		p.consume(ctx, outcomes)
		return nil
	})

	err := g.Wait()
	snap := p.tracker.Snapshot()
	p.logger.Info("run finished",
		"processed", snap.Processed,
		"embedded", snap.Embedded,
		"stored", snap.Stored,
		"failed", snap.Failed,
		"took", time.Since(start))
	return snap, err
}

// Release frees the embedding worker pool.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

func (p *Pipeline) start(ctx context.Context) error {
	if p.probe != nil {
		if err := llm.AwaitReady(ctx, p.probe, p.readiness); err != nil {
			return fmt.Errorf("%w: %w", ErrStartup, err)
		}
	} else {
		p.logger.Warn("embedding backend has no health probe, skipping readiness check")
	}

	if err := p.buffer.Ensure(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}
	return nil
}

// consume owns the buffer. Store writes ignore cancellation of ctx so that
// everything already embedded is flushed; each write is still bounded by the
// buffer timeout.
func (p *Pipeline) consume(ctx context.Context, outcomes <-chan models.Outcome) {
	storeCtx := context.WithoutCancel(ctx)

	for out := range outcomes {
		if out.Kind != models.Embedded {
			p.tracker.NotEmbedded()
			p.deadLetterDocument(storeCtx, out)
			continue
		}

		p.tracker.Embedded()
		batch, err := p.buffer.Push(storeCtx, models.NewPoint(out.Document))
		p.recordFlush(storeCtx, batch, err)
	}

	batch, err := p.buffer.FlushRemainder(storeCtx)
	p.recordFlush(storeCtx, batch, err)
}

func (p *Pipeline) recordFlush(ctx context.Context, batch []models.Point, err error) {
	if len(batch) == 0 {
		return
	}
	if err == nil {
		p.tracker.Stored(len(batch))
		return
	}

	p.tracker.FlushFailed(len(batch))
	p.logger.Error("dropping batch", "points", len(batch), "err", err)
	if p.deadLetters != nil {
		if dlErr := p.deadLetters.PutPoints(ctx, batch, err); dlErr != nil {
			p.logger.Warn("failed to dead-letter batch", "points", len(batch), "err", dlErr)
		}
	}
}

func (p *Pipeline) deadLetterDocument(ctx context.Context, out models.Outcome) {
	if p.deadLetters == nil {
		return
	}
	reason := out.Err
	if reason == nil {
		reason = llm.ErrEmptyEmbedding
	}
	if err := p.deadLetters.PutDocument(ctx, out.Document, reason); err != nil {
		p.logger.Warn("failed to dead-letter document", "source", out.Document.Metadata.Source, "err", err)
	}
}
