// Package config provides configuration data structures for tapwatch.
// A configuration can be written as legacy key/value directives, as a Lua
// table or as YAML; all three produce the same Config.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the complete tapwatch configuration.
type Config struct {
	// Interface is the network interface to watch.
	Interface string `yaml:"interface"`
	// Polling holds the adaptive polling intervals.
	Polling PollingConfig `yaml:"polling"`
	// Shell configures the privileged fallback used for unreadable sysfs files.
	Shell ShellConfig `yaml:"shell"`
	// Log configures logging output.
	Log LogConfig `yaml:"log"`
	// Server configures the optional HTTP surface.
	Server ServerConfig `yaml:"server"`
	// SysRoot prefixes /sys and /proc paths. Empty means the real filesystem.
	SysRoot string `yaml:"sys_root"`
}

// PollingConfig holds the polling intervals.
type PollingConfig struct {
	// Active is used while the link is up or has carrier.
	Active time.Duration `yaml:"active"`
	// Idle is used while the interface is down or absent.
	Idle time.Duration `yaml:"idle"`
}

// ShellMode selects how the privileged shell is obtained.
type ShellMode string

const (
	// ShellModeExec spawns a local elevation command such as su.
	ShellModeExec ShellMode = "exec"
	// ShellModeSSH opens a shell on a host over SSH.
	ShellModeSSH ShellMode = "ssh"
	// ShellModeNone disables the privileged fallback.
	ShellModeNone ShellMode = "none"
)

// ParseShellMode parses a shell mode name.
func ParseShellMode(s string) (ShellMode, error) {
	switch m := ShellMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ShellModeExec, ShellModeSSH, ShellModeNone:
		return m, nil
	case "":
		return ShellModeExec, nil
	default:
		return ShellModeExec, fmt.Errorf("unknown shell mode: %s", s)
	}
}

// ShellConfig configures the privileged shell.
type ShellConfig struct {
	Mode ShellMode `yaml:"mode"`
	// Command is the program and arguments spawned in exec mode, or the
	// remote command in ssh mode (empty means the login shell).
	Command []string `yaml:"command"`
	// CommandTimeout bounds a single privileged command. Zero disables it.
	CommandTimeout time.Duration `yaml:"command_timeout"`
	SSH            SSHConfig     `yaml:"ssh"`
}

// SSHConfig holds connection settings for ssh mode.
type SSHConfig struct {
	Host                  string        `yaml:"host"`
	Port                  int           `yaml:"port"`
	User                  string        `yaml:"user"`
	Password              string        `yaml:"password"`
	KeyFile               string        `yaml:"key_file"`
	Passphrase            string        `yaml:"passphrase"`
	UseAgent              bool          `yaml:"use_agent"`
	KnownHostsFile        string        `yaml:"known_hosts"`
	InsecureIgnoreHostKey bool          `yaml:"insecure_ignore_host_key"`
	DialTimeout           time.Duration `yaml:"dial_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File, when set, receives a rotated copy of the log.
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// Listen is the address to serve on. Empty disables the server.
	Listen string `yaml:"listen"`
	// MetricsPath is where Prometheus metrics are exposed.
	MetricsPath string `yaml:"metrics_path"`
}
