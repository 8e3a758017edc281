package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xhad/vecingest/internal/models"
	"github.com/xhad/vecingest/internal/types"
)

const (
	DefaultCapacity = 128
	DefaultTimeout  = 30 * time.Second
)

type BufferConfig struct {
	Collection types.CollectionSpec
	Capacity   int
	ShardKey   string
	Ordering   types.WriteOrdering
	Timeout    time.Duration // per upsert call
	Logger     *slog.Logger
}

// Buffer accumulates points and writes them to the store one full batch at
// a time. It is not safe for concurrent use; the pipeline consumer owns it.
type Buffer struct {
	config BufferConfig
	store  types.VectorStore
	points []models.Point
	logger *slog.Logger
}

func NewBuffer(store types.VectorStore, config BufferConfig) (*Buffer, error) {
	if store == nil {
		return nil, fmt.Errorf("vector store required")
	}
	if config.Collection.Name == "" {
		return nil, ErrCollectionRequired
	}
	if config.Collection.VectorDim <= 0 || config.Collection.Distance == "" {
		return nil, ErrVectorConfigRequired
	}
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}
	if config.Ordering == "" {
		config.Ordering = types.OrderingWeak
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Buffer{
		config: config,
		store:  store,
		points: make([]models.Point, 0, config.Capacity),
		logger: config.Logger.With("component", "buffer", "collection", config.Collection.Name),
	}, nil
}

// Ensure creates the target collection when it does not exist yet.
func (b *Buffer) Ensure(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	exists, err := b.store.CollectionExists(ctx, b.config.Collection.Name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", b.config.Collection.Name, err)
	}
	if exists {
		b.logger.Debug("collection exists")
		return nil
	}

	b.logger.Info("creating collection",
		"dim", b.config.Collection.VectorDim,
		"distance", b.config.Collection.Distance)
	if err := b.store.CreateCollection(ctx, b.config.Collection); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", b.config.Collection.Name, err)
	}
	return nil
}

// Push appends p. When the buffer is already full the buffered batch is
// written first and returned, and p starts the next batch. On a failed write
// the batch is returned with a *FlushError and dropped; p is kept either way.
func (b *Buffer) Push(ctx context.Context, p models.Point) ([]models.Point, error) {
	if len(b.points) < b.config.Capacity {
		b.points = append(b.points, p)
		return nil, nil
	}

	batch := b.take()
	b.points = append(b.points, p)
	return batch, b.flush(ctx, batch)
}

// FlushRemainder writes whatever is buffered as one last batch.
func (b *Buffer) FlushRemainder(ctx context.Context) ([]models.Point, error) {
	if len(b.points) == 0 {
		return nil, nil
	}
	batch := b.take()
	return batch, b.flush(ctx, batch)
}

func (b *Buffer) Len() int {
	return len(b.points)
}

func (b *Buffer) Capacity() int {
	return b.config.Capacity
}

// take hands the current batch to the caller and starts an empty one, so the
// returned slice is never aliased by later pushes.
func (b *Buffer) take() []models.Point {
	batch := b.points
	b.points = make([]models.Point, 0, b.config.Capacity)
	return batch
}

func (b *Buffer) flush(ctx context.Context, batch []models.Point) error {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	start := time.Now()
	err := b.store.Upsert(ctx, types.UpsertRequest{
		Collection: b.config.Collection.Name,
		ShardKey:   b.config.ShardKey,
		Ordering:   b.config.Ordering,
		Points:     batch,
	})
	if err != nil {
		b.logger.Warn("batch upsert failed", "points", len(batch), "err", err)
		return &FlushError{Collection: b.config.Collection.Name, Points: len(batch), Err: err}
	}

	b.logger.Debug("batch upserted", "points", len(batch), "took", time.Since(start))
	return nil
}
