package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/vecingest/internal/models"
	"github.com/xhad/vecingest/internal/types"
	"github.com/xhad/vecingest/pkg/llm"
	"github.com/xhad/vecingest/pkg/loader"
	"github.com/xhad/vecingest/pkg/pipeline"
	"github.com/xhad/vecingest/pkg/store"
)

// testEmbedder returns a vector derived from the text. Texts containing
// "fail" produce an error.
type testEmbedder struct {
	delay func(text string) time.Duration
}

func (e *testEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if e.delay != nil {
		select {
		case <-time.After(e.delay(text)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if strings.Contains(text, "fail") {
		return nil, errors.New("inference error")
	}
	return []float32{float32(len(text)), 1}, nil
}

// healthyEmbedder also exposes a readiness probe.
type healthyEmbedder struct {
	testEmbedder
	statuses []types.ReadinessStatus
	err      error
	calls    int
}

func (e *healthyEmbedder) Health(ctx context.Context) (types.ReadinessStatus, error) {
	if e.err != nil {
		return types.StatusUnknown, e.err
	}
	s := e.statuses[min(e.calls, len(e.statuses)-1)]
	e.calls++
	return s, nil
}

type testStore struct {
	mu        sync.Mutex
	exists    bool
	createErr error
	failAll   bool
	upserts   []types.UpsertRequest
}

func (s *testStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	return s.exists, nil
}

func (s *testStore) CreateCollection(ctx context.Context, spec types.CollectionSpec) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.exists = true
	return nil
}

func (s *testStore) Upsert(ctx context.Context, req types.UpsertRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, req)
	if s.failAll {
		return errors.New("status: ClientError")
	}
	return nil
}

func (s *testStore) Close() error { return nil }

func (s *testStore) points() []models.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pts []models.Point
	for _, req := range s.upserts {
		pts = append(pts, req.Points...)
	}
	return pts
}

type testDeadLetters struct {
	mu     sync.Mutex
	docs   []models.Document
	points []models.Point
}

func (d *testDeadLetters) PutDocument(ctx context.Context, doc models.Document, reason error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.docs = append(d.docs, doc)
	return nil
}

func (d *testDeadLetters) PutPoints(ctx context.Context, points []models.Point, reason error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.points = append(d.points, points...)
	return nil
}

func newPipeline(t *testing.T, backend types.Embedder, vs types.VectorStore, capacity int, opts ...pipeline.Option) *pipeline.Pipeline {
	t.Helper()

	embedder, err := llm.NewEmbedder(backend, llm.EmbedderConfig{Timeout: time.Second})
	require.NoError(t, err)

	buffer, err := store.NewBuffer(vs, store.BufferConfig{
		Collection: types.CollectionSpec{Name: "docs", VectorDim: 2, Distance: types.DistanceCosine},
		Capacity:   capacity,
	})
	require.NoError(t, err)

	p, err := pipeline.NewPipeline(embedder, buffer, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func documents(texts ...string) []models.Document {
	docs := make([]models.Document, len(texts))
	for i, text := range texts {
		docs[i] = models.Document{
			Content:  text,
			Metadata: models.Metadata{Source: fmt.Sprintf("doc-%d", i), ContentType: "text/plain", Language: "en"},
		}
	}
	return docs
}

func TestNewPipelineValidation(t *testing.T) {
	embedder, err := llm.NewEmbedder(&testEmbedder{}, llm.EmbedderConfig{})
	require.NoError(t, err)

	_, err = pipeline.NewPipeline(nil, nil)
	assert.ErrorIs(t, err, pipeline.ErrEmbedderRequired)

	_, err = pipeline.NewPipeline(embedder, nil)
	assert.ErrorIs(t, err, pipeline.ErrBufferRequired)

	buffer, err := store.NewBuffer(&testStore{}, store.BufferConfig{
		Collection: types.CollectionSpec{Name: "docs", VectorDim: 2, Distance: types.DistanceDot},
	})
	require.NoError(t, err)
	_, err = pipeline.NewPipeline(embedder, buffer, pipeline.WithChannelSize(0))
	assert.Error(t, err)
}

func TestRun_EndToEnd(t *testing.T) {
	input := `{"page_content":"hi","metadata":{"source":"a","content_type":"text","language":"en"}}`
	docs, skipped, err := loader.Read(strings.NewReader(input))
	require.NoError(t, err)
	require.Zero(t, skipped)

	vs := &testStore{}
	p := newPipeline(t, &fixedEmbedder{vector: []float32{1.0, 2.0}}, vs, 128)

	snap, err := p.Run(context.Background(), docs)
	require.NoError(t, err)

	require.Len(t, vs.upserts, 1)
	require.Len(t, vs.upserts[0].Points, 1)
	pt := vs.upserts[0].Points[0]
	assert.Equal(t, []float32{1, 2}, pt.Vector)
	assert.Equal(t, map[string]any{"source": "a", "content_type": "text", "language": "en"}, pt.Payload)
	assert.Len(t, pt.ID, 36)

	assert.Equal(t, pipeline.Snapshot{Embedded: 1, Stored: 1}, snap)
}

type fixedEmbedder struct {
	vector []float32
}

func (e *fixedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.vector, nil
}

func TestRun_BatchesAndCounters(t *testing.T) {
	vs := &testStore{exists: true}
	p := newPipeline(t, &testEmbedder{}, vs, 2)

	snap, err := p.Run(context.Background(), documents("a", "bb", "fail", "ccc", "dddd"))
	require.NoError(t, err)

	// Four embedded points with capacity two: one full flush on the fourth
	// push, the rest in the tail flush.
	require.Len(t, vs.upserts, 2)
	assert.Len(t, vs.upserts[0].Points, 2)
	assert.Len(t, vs.upserts[1].Points, 2)

	assert.Equal(t, pipeline.Snapshot{Processed: 1, Embedded: 4, Stored: 4, Failed: 1}, snap)
}

func TestRun_StoreFailure(t *testing.T) {
	vs := &testStore{exists: true, failAll: true}
	dl := &testDeadLetters{}
	p := newPipeline(t, &testEmbedder{}, vs, 2, pipeline.WithDeadLetters(dl))

	snap, err := p.Run(context.Background(), documents("a", "b", "c", "fail"))
	require.NoError(t, err)

	assert.Len(t, vs.upserts, 2)
	assert.Equal(t, pipeline.Snapshot{Processed: 1, Embedded: 3, Stored: 0, Failed: 4}, snap)
	assert.Len(t, dl.points, 3)
	require.Len(t, dl.docs, 1)
	assert.Equal(t, "fail", dl.docs[0].Content)
	assert.Empty(t, dl.docs[0].Embedding)
}

func TestRun_PreservesOrderWithWorkers(t *testing.T) {
	texts := make([]string, 40)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}

	vs := &testStore{exists: true}
	// Earlier documents take longer so workers finish out of order.
	embedder := &testEmbedder{delay: func(text string) time.Duration {
		return time.Duration(40-len(text)) * 200 * time.Microsecond
	}}
	p := newPipeline(t, embedder, vs, 8, pipeline.WithEmbedWorkers(4))

	snap, err := p.Run(context.Background(), documents(texts...))
	require.NoError(t, err)
	assert.Equal(t, int64(40), snap.Stored)

	pts := vs.points()
	require.Len(t, pts, 40)
	for i, pt := range pts {
		assert.Equal(t, float32(i+1), pt.Vector[0], "point %d out of order", i)
		assert.Equal(t, fmt.Sprintf("doc-%d", i), pt.Payload["source"])
	}
}

func TestRun_Backpressure(t *testing.T) {
	vs := &testStore{exists: true}
	p := newPipeline(t, &testEmbedder{}, vs, 1, pipeline.WithChannelSize(1))

	snap, err := p.Run(context.Background(), documents("a", "b", "c", "d", "e", "f"))
	require.NoError(t, err)
	assert.Equal(t, int64(6), snap.Stored)
	assert.Len(t, vs.upserts, 6)
}

func TestRun_ReadinessGate(t *testing.T) {
	t.Run("waits for ready", func(t *testing.T) {
		backend := &healthyEmbedder{statuses: []types.ReadinessStatus{types.StatusLoading, types.StatusReady}}
		vs := &testStore{}
		p := newPipeline(t, backend, vs, 4, pipeline.WithReadiness(llm.BackoffConfig{
			InitialBackoff: time.Millisecond,
			Increment:      time.Millisecond,
		}))

		snap, err := p.Run(context.Background(), documents("a"))
		require.NoError(t, err)
		assert.Equal(t, 2, backend.calls)
		assert.Equal(t, int64(1), snap.Stored)
	})

	t.Run("transport failure aborts startup", func(t *testing.T) {
		backend := &healthyEmbedder{err: errors.New("connection refused")}
		vs := &testStore{}
		p := newPipeline(t, backend, vs, 4)

		snap, err := p.Run(context.Background(), documents("a"))
		assert.ErrorIs(t, err, pipeline.ErrStartup)
		assert.ErrorIs(t, err, llm.ErrProbeTransport)
		assert.Empty(t, vs.upserts)
		assert.Equal(t, pipeline.Snapshot{}, snap)
	})

	t.Run("bounded wait", func(t *testing.T) {
		backend := &healthyEmbedder{statuses: []types.ReadinessStatus{types.StatusLoading}}
		p := newPipeline(t, backend, &testStore{}, 4, pipeline.WithReadiness(llm.BackoffConfig{
			InitialBackoff: time.Millisecond,
			MaxAttempts:    3,
		}))

		_, err := p.Run(context.Background(), documents("a"))
		assert.ErrorIs(t, err, pipeline.ErrStartup)
		assert.ErrorIs(t, err, llm.ErrNotReady)
		assert.Equal(t, 3, backend.calls)
	})

	t.Run("probe override", func(t *testing.T) {
		called := false
		probe := func(ctx context.Context) (types.ReadinessStatus, error) {
			called = true
			return types.StatusReady, nil
		}
		p := newPipeline(t, &testEmbedder{}, &testStore{}, 4, pipeline.WithProbe(probe))

		_, err := p.Run(context.Background(), documents("a"))
		require.NoError(t, err)
		assert.True(t, called)
	})
}

func TestRun_CollectionBootstrapFailure(t *testing.T) {
	vs := &testStore{createErr: errors.New("permission denied")}
	p := newPipeline(t, &testEmbedder{}, vs, 4)

	_, err := p.Run(context.Background(), documents("a"))
	assert.ErrorIs(t, err, pipeline.ErrStartup)
	assert.Empty(t, vs.upserts)
}

func TestRun_Cancelled(t *testing.T) {
	vs := &testStore{exists: true}
	ctx, cancel := context.WithCancel(context.Background())

	var once sync.Once
	embedder := &testEmbedder{delay: func(text string) time.Duration {
		if text == "stop" {
			once.Do(cancel)
			return time.Second
		}
		return 0
	}}
	p := newPipeline(t, embedder, vs, 10)

	snap, err := p.Run(ctx, documents("a", "b", "stop", "c"))
	assert.ErrorIs(t, err, context.Canceled)

	// Points embedded before the cancellation are still flushed.
	assert.Equal(t, int64(2), snap.Stored)
	assert.Len(t, vs.points(), 2)
}

func TestTracker(t *testing.T) {
	var mu sync.Mutex
	updates := map[pipeline.Counter]int64{}
	tracker := pipeline.NewTracker(func(c pipeline.Counter, delta int64) {
		mu.Lock()
		defer mu.Unlock()
		updates[c] += delta
	})

	tracker.NotEmbedded()
	tracker.Embedded()
	tracker.Embedded()
	tracker.Stored(2)
	tracker.FlushFailed(0)

	want := pipeline.Snapshot{Processed: 1, Embedded: 2, Stored: 2, Failed: 1}
	assert.Equal(t, want, tracker.Snapshot())
	assert.Equal(t, map[pipeline.Counter]int64{
		pipeline.CounterProcessed: 1,
		pipeline.CounterEmbedded:  2,
		pipeline.CounterStored:    2,
		pipeline.CounterFailed:    1,
	}, updates)

	assert.Equal(t, "stored", pipeline.CounterStored.String())
}

func TestRun_SharedTracker(t *testing.T) {
	tracker := pipeline.NewTracker(nil)
	p := newPipeline(t, &testEmbedder{}, &testStore{exists: true}, 4, pipeline.WithTracker(tracker))

	_, err := p.Run(context.Background(), documents("a", "fail"))
	require.NoError(t, err)
	assert.Same(t, tracker, p.Tracker())
	assert.Equal(t, int64(1), tracker.Snapshot().Stored)
}
