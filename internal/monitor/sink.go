package monitor

import (
	"context"
	"sync"
)

// Sink receives every View the monitor produces. Deliver is called from the
// polling goroutine and the next cycle does not start until it returns.
// Deliver must not call Monitor.Stop or Monitor.Start.
type Sink interface {
	Deliver(ctx context.Context, v View) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, v View) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, v View) error {
	return f(ctx, v)
}

// ChannelSink hands each View to a receiver over a channel. With an
// unbuffered channel the poll loop waits for the consumer; delivery is
// abandoned when the monitor is stopped.
type ChannelSink chan<- View

// Deliver sends v or gives up when ctx is done.
func (c ChannelSink) Deliver(ctx context.Context, v View) error {
	select {
	case c <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MultiSink delivers to every sink in order. All sinks are attempted; their
// failures come back as a *DeliveryError.
type MultiSink []Sink

// Deliver fans v out.
func (m MultiSink) Deliver(ctx context.Context, v View) error {
	var errs []*SinkError
	for i, s := range m {
		if s == nil {
			continue
		}
		if err := s.Deliver(ctx, v); err != nil {
			errs = append(errs, &SinkError{Index: i, Err: err})
		}
	}
	if len(errs) > 0 {
		return &DeliveryError{Errors: errs}
	}
	return nil
}

// LatestSink keeps the most recent View for readers outside the poll loop.
type LatestSink struct {
	mu   sync.RWMutex
	view View
	ok   bool
}

// Deliver stores v.
func (l *LatestSink) Deliver(_ context.Context, v View) error {
	l.mu.Lock()
	l.view = v
	l.ok = true
	l.mu.Unlock()
	return nil
}

// Latest returns the last stored View; ok is false before the first one.
func (l *LatestSink) Latest() (View, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.view, l.ok
}

// Clear forgets the stored View.
func (l *LatestSink) Clear() {
	l.mu.Lock()
	l.view = View{}
	l.ok = false
	l.mu.Unlock()
}
