package config

import "time"

// Default values.
const (
	DefaultInterface      = "tap0"
	DefaultActiveInterval = 1000 * time.Millisecond
	DefaultIdleInterval   = 2500 * time.Millisecond
	DefaultMetricsPath    = "/metrics"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// DefaultShellCommand is the elevation command used in exec mode.
var DefaultShellCommand = []string{"su"}

// DefaultConfig returns a Config with the default values.
func DefaultConfig() Config {
	return Config{
		Interface: DefaultInterface,
		Polling: PollingConfig{
			Active: DefaultActiveInterval,
			Idle:   DefaultIdleInterval,
		},
		Shell: ShellConfig{
			Mode:    ShellModeExec,
			Command: append([]string(nil), DefaultShellCommand...),
		},
		Log: LogConfig{
			Level:      DefaultLogLevel,
			Format:     DefaultLogFormat,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		},
		Server: ServerConfig{
			MetricsPath: DefaultMetricsPath,
		},
	}
}
