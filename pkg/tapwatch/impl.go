package tapwatch

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/tapwatch/internal/config"
	"github.com/opd-ai/tapwatch/internal/logging"
	"github.com/opd-ai/tapwatch/internal/monitor"
	"github.com/opd-ai/tapwatch/internal/netif"
	"github.com/opd-ai/tapwatch/internal/shell"
	"github.com/opd-ai/tapwatch/internal/sysfs"
)

// instance is the private implementation of the Instance interface.
type instance struct {
	store   *config.Store
	opts    Options
	logger  logging.Logger
	metrics *monitor.Metrics

	latest monitor.LatestSink
	link   linkTracker

	// lifecycle serialises Start, Stop, Restart and ReloadConfig.
	lifecycle sync.Mutex

	mu        sync.RWMutex
	session   *shell.Session // owned; nil when injected or disabled
	reader    *netif.SnapshotReader
	mon       *monitor.Monitor
	watcher   *configWatcher
	startTime time.Time

	running   atomic.Bool
	lastError atomic.Value
	// stopping is the pending shutdown after Stop timed out; guarded by
	// lifecycle. running stays true until it completes.
	stopping chan error

	hmu          sync.RWMutex
	errorHandler ErrorHandler
	eventHandler EventHandler
}

// Verify interface implementation at compile time.
var _ Instance = (*instance)(nil)

// build wires shell, file access, reader and monitor for cfg.
func (w *instance) build(cfg config.Config) error {
	exec := w.opts.Shell
	var session *shell.Session
	if exec == nil {
		s, err := NewShell(cfg.Shell, w.logger)
		if err != nil {
			return err
		}
		if s != nil {
			session = s
			exec = s
		}
	}

	fsOpts := []sysfs.Option{sysfs.WithRoot(cfg.SysRoot), sysfs.WithLogger(w.logger)}
	if exec != nil {
		fsOpts = append(fsOpts, sysfs.WithShell(exec))
	}
	reader := netif.NewSnapshotReader(sysfs.New(fsOpts...), w.logger)

	sinks := monitor.MultiSink{&w.latest, monitor.SinkFunc(w.trackLink)}
	sinks = append(sinks, w.opts.Sinks...)
	mon := monitor.New(w.store.Interface, reader, sinks,
		monitor.WithLogger(w.logger),
		monitor.WithMetrics(w.metrics),
	)

	w.mu.Lock()
	w.session = session
	w.reader = reader
	w.mon = mon
	w.mu.Unlock()
	return nil
}

// Start begins polling.
func (w *instance) Start() error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	if err := w.startLocked(); err != nil {
		return err
	}
	w.emitEvent(EventStarted, "Instance started")
	return nil
}

func (w *instance) startLocked() error {
	if w.running.Load() {
		return fmt.Errorf("tapwatch instance already running")
	}
	cfg := w.store.Config()

	w.mu.Lock()
	mon := w.mon
	w.mu.Unlock()
	if err := mon.Start(cfg.Polling.Active, cfg.Polling.Idle); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	w.mu.Lock()
	w.startTime = time.Now()
	w.mu.Unlock()
	w.running.Store(true)

	if w.opts.WatchConfig && w.store.Path() != "" {
		watcher, err := watchConfig(w.store.Path(), w.opts.WatchDebounce, w.ReloadConfig, w.notifyError)
		if err != nil {
			// Polling works without hot reload.
			w.notifyError(fmt.Errorf("config watch: %w", err))
		} else {
			w.mu.Lock()
			w.watcher = watcher
			w.mu.Unlock()
		}
	}

	w.logger.Info("tapwatch started", "interface", cfg.Interface, "source", w.configSource())
	return nil
}

// Stop halts polling and closes the shell.
func (w *instance) Stop() error {
	w.stopWatcher()
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	return w.stopLocked()
}

// stopWatcher must run without the lifecycle lock: the watcher may be
// waiting for it inside ReloadConfig.
func (w *instance) stopWatcher() {
	w.mu.Lock()
	watcher := w.watcher
	w.watcher = nil
	w.mu.Unlock()
	if watcher != nil {
		watcher.Stop()
	}
}

func (w *instance) stopLocked() error {
	if !w.running.Load() {
		return nil
	}

	if w.stopping == nil {
		w.mu.RLock()
		mon, session := w.mon, w.session
		w.mu.RUnlock()

		done := make(chan error, 1)
		go func() {
			mon.Stop()
			var err error
			if session != nil {
				err = session.Shutdown()
			}
			done <- err
		}()
		w.stopping = done
	}

	timeout := w.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	select {
	case err := <-w.stopping:
		if err != nil {
			w.logger.Debug("privileged shell shutdown", "error", err)
		}
	case <-time.After(timeout):
		err := fmt.Errorf("shutdown timeout after %v: poll loop did not stop", timeout)
		w.notifyError(err)
		return err
	}
	w.stopping = nil
	w.running.Store(false)

	w.link.reset()
	w.emitEvent(EventStopped, "Instance stopped")
	w.logger.Info("tapwatch stopped")
	return nil
}

// Restart stops, reloads, rebuilds and starts again.
func (w *instance) Restart() error {
	w.stopWatcher()
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if err := w.stopLocked(); err != nil {
		wrappedErr := fmt.Errorf("stop failed: %w", err)
		w.notifyError(wrappedErr)
		return wrappedErr
	}
	cfg, err := w.store.Reload()
	if err != nil {
		wrappedErr := fmt.Errorf("config reload failed: %w", err)
		w.notifyError(wrappedErr)
		return wrappedErr
	}
	w.metrics.IncrementConfigReloads()
	if err := w.build(cfg); err != nil {
		wrappedErr := fmt.Errorf("rebuild failed: %w", err)
		w.notifyError(wrappedErr)
		return wrappedErr
	}
	if err := w.startLocked(); err != nil {
		wrappedErr := fmt.Errorf("start failed: %w", err)
		w.notifyError(wrappedErr)
		return wrappedErr
	}
	w.emitEvent(EventRestarted, "Instance restarted")
	return nil
}

// ReloadConfig applies a changed configuration in place.
func (w *instance) ReloadConfig() error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	old := w.store.Config()
	cfg, err := w.store.Reload()
	if err != nil {
		wrappedErr := fmt.Errorf("config reload failed: %w", err)
		w.notifyError(wrappedErr)
		return wrappedErr
	}
	w.metrics.IncrementConfigReloads()

	if old.Interface != cfg.Interface {
		w.logger.Info("watched interface changed by configuration", "from", old.Interface, "to", cfg.Interface)
	}
	if w.running.Load() && w.stopping == nil && cfg.Polling != old.Polling {
		w.mu.RLock()
		mon := w.mon
		w.mu.RUnlock()
		if err := mon.Start(cfg.Polling.Active, cfg.Polling.Idle); err != nil {
			w.notifyError(err)
			return err
		}
	}
	if !shellEqual(old.Shell, cfg.Shell) || old.SysRoot != cfg.SysRoot {
		w.logger.Warn("shell or sysfs settings changed; restart to apply")
	}

	w.emitEvent(EventConfigReloaded, "Configuration reloaded in-place")
	return nil
}

func shellEqual(a, b config.ShellConfig) bool {
	return a.Mode == b.Mode &&
		slices.Equal(a.Command, b.Command) &&
		a.CommandTimeout == b.CommandTimeout &&
		a.SSH == b.SSH
}

// IsRunning reports whether polling is active.
func (w *instance) IsRunning() bool {
	return w.running.Load()
}

// Latest returns the most recent View.
func (w *instance) Latest() (monitor.View, bool) {
	return w.latest.Latest()
}

// Interfaces lists the interfaces known to the kernel.
func (w *instance) Interfaces() []string {
	w.mu.RLock()
	reader := w.reader
	w.mu.RUnlock()
	return reader.Interfaces()
}

// DefaultRouteInterfaces lists interfaces carrying a default route.
func (w *instance) DefaultRouteInterfaces() []string {
	w.mu.RLock()
	reader := w.reader
	w.mu.RUnlock()
	return reader.Routes().DefaultInterfaces()
}

// Config returns a copy of the active configuration.
func (w *instance) Config() config.Config {
	return w.store.Config()
}

// Status returns detailed status information about the instance.
func (w *instance) Status() Status {
	w.mu.RLock()
	startTime := w.startTime
	w.mu.RUnlock()

	return Status{
		Running:      w.running.Load(),
		StartTime:    startTime,
		Interface:    w.store.Interface(),
		LastError:    w.getError(),
		ConfigSource: w.configSource(),
	}
}

// Metrics returns the metrics collector for this instance.
func (w *instance) Metrics() *monitor.Metrics {
	return w.metrics
}

// SetErrorHandler registers a callback for runtime errors.
func (w *instance) SetErrorHandler(handler ErrorHandler) {
	w.hmu.Lock()
	defer w.hmu.Unlock()
	w.errorHandler = handler
}

// SetEventHandler registers a callback for lifecycle events.
func (w *instance) SetEventHandler(handler EventHandler) {
	w.hmu.Lock()
	defer w.hmu.Unlock()
	w.eventHandler = handler
}

func (w *instance) configSource() string {
	if p := w.store.Path(); p != "" {
		return p
	}
	return "defaults"
}

// getError retrieves the last error.
func (w *instance) getError() error {
	if v := w.lastError.Load(); v != nil {
		if err, ok := v.(error); ok {
			return err
		}
	}
	return nil
}

// notifyError stores err, counts it and invokes the error handler.
func (w *instance) notifyError(err error) {
	w.lastError.Store(err)
	w.metrics.IncrementErrors()
	w.logger.Error("tapwatch error", "error", err)

	w.hmu.RLock()
	handler := w.errorHandler
	w.hmu.RUnlock()

	if handler != nil {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("error handler panicked", "panic", r, "original_error", err)
				}
			}()
			handler(err)
		}()
	}
	w.emitEvent(EventError, err.Error())
}

// emitEvent sends an event to the event handler if configured.
func (w *instance) emitEvent(eventType EventType, message string) {
	w.hmu.RLock()
	handler := w.eventHandler
	w.hmu.RUnlock()
	if handler == nil {
		return
	}

	ev := Event{Type: eventType, Timestamp: time.Now(), Message: message}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("event handler panicked", "panic", r, "event", eventType.String())
			}
		}()
		handler(ev)
	}()
}

// linkTracker remembers the last link state seen by the poll loop.
type linkTracker struct {
	mu     sync.Mutex
	seen   bool
	iface  string
	exists bool
	up     bool
}

func (l *linkTracker) reset() {
	l.mu.Lock()
	l.seen, l.iface, l.exists, l.up = false, "", false, false
	l.mu.Unlock()
}

// observe returns a description of the change since the previous view,
// or "" when nothing changed.
func (l *linkTracker) observe(v monitor.View) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	first := !l.seen || l.iface != v.Interface
	changed := !first && (l.exists != v.Exists || l.up != v.Up)
	existed := l.exists
	l.seen, l.iface, l.exists, l.up = true, v.Interface, v.Exists, v.Up
	if !changed {
		return ""
	}
	switch {
	case !v.Exists:
		return v.Interface + " disappeared"
	case !existed:
		return v.Interface + " appeared"
	case v.Up:
		return v.Interface + " link up"
	default:
		return v.Interface + " link down"
	}
}

// trackLink is the sink that turns link transitions into events.
func (w *instance) trackLink(_ context.Context, v monitor.View) error {
	if msg := w.link.observe(v); msg != "" {
		w.logger.Info("link changed", "interface", v.Interface, "exists", v.Exists, "up", v.Up)
		w.emitEvent(EventLinkChanged, msg)
	}
	return nil
}
