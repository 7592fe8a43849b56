package profiling

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Sample is one reading of the runtime memory statistics.
type Sample struct {
	Timestamp  time.Time
	HeapAlloc  uint64
	Goroutines int
}

// ReadSample reads the current heap size and goroutine count.
func ReadSample() Sample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Sample{
		Timestamp:  time.Now(),
		HeapAlloc:  ms.HeapAlloc,
		Goroutines: runtime.NumGoroutine(),
	}
}

// Growth compares the oldest and newest sample of a window.
type Growth struct {
	Duration       time.Duration
	HeapDelta      int64
	GoroutineDelta int
	BytesPerSecond float64
	Leak           bool
	Reason         string
}

// LeakWatchConfig tunes a LeakWatch. Zero fields take the defaults.
type LeakWatchConfig struct {
	Interval           time.Duration
	Window             int
	HeapBytesPerSecond float64
	GoroutineIncrease  int
}

// DefaultLeakWatchConfig watches a ten minute window.
func DefaultLeakWatchConfig() LeakWatchConfig {
	return LeakWatchConfig{
		Interval:           10 * time.Second,
		Window:             60,
		HeapBytesPerSecond: 64 * 1024,
		GoroutineIncrease:  20,
	}
}

// LeakWatch samples the runtime periodically and reports sustained heap or
// goroutine growth. The daemon keeps one shell and its pump goroutines per
// session, so a steady climb means sessions or websocket clients are not
// being torn down.
type LeakWatch struct {
	cfg    LeakWatchConfig
	onLeak func(Growth)
	read   func() Sample

	mu      sync.Mutex
	samples []Sample
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLeakWatch returns a stopped LeakWatch calling onLeak on every window
// that shows growth.
func NewLeakWatch(cfg LeakWatchConfig, onLeak func(Growth)) *LeakWatch {
	def := DefaultLeakWatchConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Window < 2 {
		cfg.Window = def.Window
	}
	if cfg.HeapBytesPerSecond <= 0 {
		cfg.HeapBytesPerSecond = def.HeapBytesPerSecond
	}
	if cfg.GoroutineIncrease <= 0 {
		cfg.GoroutineIncrease = def.GoroutineIncrease
	}
	return &LeakWatch{cfg: cfg, onLeak: onLeak, read: ReadSample}
}

// Add records s, evicting the oldest sample once the window is full, and
// returns the growth over the window.
func (w *LeakWatch) Add(s Sample) (Growth, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, s)
	if len(w.samples) > w.cfg.Window {
		w.samples = w.samples[1:]
	}
	if len(w.samples) < w.cfg.Window {
		return Growth{}, false
	}
	return w.analyze(w.samples[0], w.samples[len(w.samples)-1])
}

func (w *LeakWatch) analyze(first, last Sample) (Growth, bool) {
	d := last.Timestamp.Sub(first.Timestamp)
	if d <= 0 {
		return Growth{}, false
	}
	g := Growth{
		Duration:       d,
		HeapDelta:      int64(last.HeapAlloc) - int64(first.HeapAlloc),
		GoroutineDelta: last.Goroutines - first.Goroutines,
	}
	g.BytesPerSecond = float64(g.HeapDelta) / d.Seconds()

	switch {
	case g.GoroutineDelta > w.cfg.GoroutineIncrease:
		g.Leak = true
		g.Reason = fmt.Sprintf("goroutines grew by %d over %s", g.GoroutineDelta, d.Round(time.Second))
	case g.BytesPerSecond > w.cfg.HeapBytesPerSecond:
		g.Leak = true
		g.Reason = fmt.Sprintf("heap grew %.1f KiB/s over %s", g.BytesPerSecond/1024, d.Round(time.Second))
	}
	return g, true
}

// Start begins sampling. Calling Start on a running LeakWatch is a no-op.
func (w *LeakWatch) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)
}

// Stop ends sampling and waits for the loop to exit.
func (w *LeakWatch) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *LeakWatch) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if g, ok := w.Add(w.read()); ok && g.Leak && w.onLeak != nil {
			w.onLeak(g)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
