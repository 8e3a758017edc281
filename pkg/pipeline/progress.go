package pipeline

import "sync/atomic"

type Counter int

const (
	CounterProcessed Counter = iota
	CounterEmbedded
	CounterStored
	CounterFailed
)

func (c Counter) String() string {
	switch c {
	case CounterProcessed:
		return "processed"
	case CounterEmbedded:
		return "embedded"
	case CounterStored:
		return "stored"
	case CounterFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of the tracker counters.
type Snapshot struct {
	Processed int64 `json:"processed"`
	Embedded  int64 `json:"embedded"`
	Stored    int64 `json:"stored"`
	Failed    int64 `json:"failed"`
}

// UpdateFunc is called after every counter change with the counter and the
// amount it grew by.
type UpdateFunc func(counter Counter, delta int64)

// Tracker counts documents as they pass the consumer stage. Processed counts
// documents that left the pipeline without a vector. Counters only grow.
// Writes come from the consumer goroutine; Snapshot may be called from any
// goroutine.
type Tracker struct {
	processed atomic.Int64
	embedded  atomic.Int64
	stored    atomic.Int64
	failed    atomic.Int64

	onUpdate UpdateFunc
}

// NewTracker creates a tracker. onUpdate may be nil.
func NewTracker(onUpdate UpdateFunc) *Tracker {
	return &Tracker{onUpdate: onUpdate}
}

func (t *Tracker) NotEmbedded() {
	t.add(CounterProcessed, 1)
	t.add(CounterFailed, 1)
}

func (t *Tracker) Embedded() {
	t.add(CounterEmbedded, 1)
}

func (t *Tracker) Stored(n int) {
	t.add(CounterStored, int64(n))
}

func (t *Tracker) FlushFailed(n int) {
	t.add(CounterFailed, int64(n))
}

func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Processed: t.processed.Load(),
		Embedded:  t.embedded.Load(),
		Stored:    t.stored.Load(),
		Failed:    t.failed.Load(),
	}
}

func (t *Tracker) add(c Counter, delta int64) {
	if delta <= 0 {
		return
	}
	switch c {
	case CounterProcessed:
		t.processed.Add(delta)
	case CounterEmbedded:
		t.embedded.Add(delta)
	case CounterStored:
		t.stored.Add(delta)
	case CounterFailed:
		t.failed.Add(delta)
	}
	if t.onUpdate != nil {
		t.onUpdate(c, delta)
	}
}
