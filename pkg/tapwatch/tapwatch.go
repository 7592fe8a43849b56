package tapwatch

import (
	"fmt"

	"github.com/opd-ai/tapwatch/internal/config"
	"github.com/opd-ai/tapwatch/internal/logging"
	"github.com/opd-ai/tapwatch/internal/monitor"
)

// Instance is an embedded tapwatch monitor with full lifecycle control.
// It is safe for concurrent use from multiple goroutines.
type Instance interface {
	// Start begins polling in the background. It returns an error if the
	// instance is already running.
	Start() error

	// Stop halts polling and closes the privileged shell. Safe to call
	// multiple times; subsequent calls are no-ops.
	Stop() error

	// Restart stops, reloads the configuration, rebuilds the shell and
	// starts again.
	Restart() error

	// ReloadConfig reloads the configuration without rebuilding the shell.
	// On failure the previous configuration stays active.
	ReloadConfig() error

	// IsRunning reports whether polling is active.
	IsRunning() bool

	// Latest returns the most recent View; ok is false before the first poll.
	Latest() (monitor.View, bool)

	// Interfaces lists the interfaces known to the kernel.
	Interfaces() []string

	// DefaultRouteInterfaces lists interfaces carrying a default route.
	DefaultRouteInterfaces() []string

	// Config returns a copy of the active configuration.
	Config() config.Config

	// Status returns detailed status information about the instance.
	Status() Status

	// Health returns a health check result for the instance.
	Health() HealthCheck

	// Metrics returns the metrics collector for this instance.
	Metrics() *monitor.Metrics

	// SetErrorHandler registers a callback for runtime errors. Panics in
	// the handler are recovered.
	SetErrorHandler(handler ErrorHandler)

	// SetEventHandler registers a callback for lifecycle events.
	SetEventHandler(handler EventHandler)
}

// New creates an Instance from a configuration file. An empty path runs
// on defaults. The instance is created but not started.
func New(configPath string, opts *Options) (Instance, error) {
	if opts == nil {
		defaultOpts := DefaultOptions()
		opts = &defaultOpts
	}

	storeOpts := []config.StoreOption{config.WithOverride(opts.apply)}
	if opts.Environ != nil {
		storeOpts = append(storeOpts, config.WithEnviron(opts.Environ))
	}
	store, err := config.NewStore(configPath, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	w := &instance{
		store:   store,
		opts:    *opts,
		logger:  logging.OrNop(opts.Logger),
		metrics: opts.Metrics,
	}
	if w.metrics == nil {
		w.metrics = monitor.NewMetrics()
	}
	if err := w.build(store.Config()); err != nil {
		return nil, err
	}
	return w, nil
}

// apply writes the option overrides into a freshly loaded configuration.
func (o Options) apply(cfg *config.Config) {
	if o.Interface != "" {
		cfg.Interface = o.Interface
	}
	if o.ActiveInterval > 0 {
		cfg.Polling.Active = o.ActiveInterval
	}
	if o.IdleInterval > 0 {
		cfg.Polling.Idle = o.IdleInterval
	}
}
