package traverse

import (
	"context"
	"sync/atomic"
)

// ProgressFunc is called after each entry point finishes.
// current is the number of entry points done, total is the number
// scheduled, and entry is the signature just completed.
type ProgressFunc func(current, total int, entry string)

// Tracker counts finished entry points. It is safe for concurrent use.
type Tracker struct {
	total    atomic.Int32
	current  atomic.Int32
	callback ProgressFunc
}

// NewTracker creates a tracker that invokes callback on each Tick.
func NewTracker(callback ProgressFunc) *Tracker {
	return &Tracker{callback: callback}
}

// Add increments the total by n.
func (t *Tracker) Add(n int) {
	t.total.Add(int32(n))
}

// Tick marks one entry point as done.
func (t *Tracker) Tick(entry string) {
	current := int(t.current.Add(1))
	total := int(t.total.Load())
	if t.callback != nil {
		t.callback(current, total, entry)
	}
}

// Current returns the number of finished entry points.
func (t *Tracker) Current() int {
	return int(t.current.Load())
}

// Total returns the number of scheduled entry points.
func (t *Tracker) Total() int {
	return int(t.total.Load())
}

type trackerKey struct{}

// WithTracker returns a context carrying t.
func WithTracker(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// TrackerFromContext returns the tracker set by WithTracker, or nil.
func TrackerFromContext(ctx context.Context) *Tracker {
	if t, ok := ctx.Value(trackerKey{}).(*Tracker); ok {
		return t
	}
	return nil
}
