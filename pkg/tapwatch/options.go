package tapwatch

import (
	"time"

	"github.com/opd-ai/tapwatch/internal/monitor"
	"github.com/opd-ai/tapwatch/internal/shell"
)

// DefaultShutdownTimeout is the default timeout for graceful shutdown.
const DefaultShutdownTimeout = 5 * time.Second

// Options configures an Instance. Zero values mean "use the configuration".
type Options struct {
	// Interface overrides the configured interface, also across reloads.
	Interface string

	// ActiveInterval and IdleInterval override the configured intervals.
	ActiveInterval time.Duration
	IdleInterval   time.Duration

	// Shell replaces the privileged shell built from the configuration.
	// The Instance does not shut down an injected shell.
	Shell shell.Executor

	// Sinks receive every View in addition to the built-in Latest store.
	Sinks []monitor.Sink

	// Logger sets a custom logger. If nil, no logging is performed.
	Logger Logger

	// Metrics sets the metrics collector. If nil, a private one is created.
	Metrics *monitor.Metrics

	// WatchConfig reloads the configuration when the file changes on disk.
	WatchConfig bool

	// WatchDebounce coalesces rapid file events. Zero means DefaultWatchDebounce.
	WatchDebounce time.Duration

	// ShutdownTimeout bounds Stop. Zero means DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	// Environ replaces os.Environ as the source of TAPWATCH_* overrides.
	Environ func() []string
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{}
}

// Logger interface for custom logging.
// It follows the slog-style signature for compatibility with Go's structured logging.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, args ...any)
	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, args ...any)
}
