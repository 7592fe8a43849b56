package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/opd-ai/tapwatch/internal/logging"
	"github.com/opd-ai/tapwatch/internal/netif"
)

// ValidationError represents a configuration validation error.
// It contains the field name and a description of the issue.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (ve ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the results of a configuration validation.
type ValidationResult struct {
	// Errors contains all validation errors found.
	Errors []ValidationError
	// Warnings contains non-fatal issues.
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (vr *ValidationResult) IsValid() bool {
	return len(vr.Errors) == 0
}

// Error returns a combined error message if there are errors, nil otherwise.
func (vr *ValidationResult) Error() error {
	if len(vr.Errors) == 0 {
		return nil
	}
	messages := make([]string, 0, len(vr.Errors))
	for _, e := range vr.Errors {
		messages = append(messages, e.Error())
	}
	return fmt.Errorf("validation failed: %s", strings.Join(messages, "; "))
}

// AddError adds a validation error.
func (vr *ValidationResult) AddError(field, message string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (vr *ValidationResult) AddWarning(field, message string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks cfg for values the monitor cannot run with.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	if !netif.ValidName(cfg.Interface) {
		result.AddError("interface", fmt.Sprintf("invalid interface name %q", cfg.Interface))
	}
	validatePolling(&cfg.Polling, result)
	validateShell(&cfg.Shell, result)
	validateLog(&cfg.Log, result)
	validateServer(&cfg.Server, result)
	return result
}

// ValidateConfig is a convenience wrapper returning only the error.
func ValidateConfig(cfg *Config) error {
	return Validate(cfg).Error()
}

func validatePolling(pc *PollingConfig, result *ValidationResult) {
	if pc.Active <= 0 {
		result.AddError("polling.active", "must be positive")
	}
	if pc.Idle <= 0 {
		result.AddError("polling.idle", "must be positive")
	}
	if pc.Active > 0 && pc.Idle > 0 && pc.Active > pc.Idle {
		result.AddWarning("polling", "active interval is longer than idle interval")
	}
}

func validateShell(sc *ShellConfig, result *ValidationResult) {
	if sc.CommandTimeout < 0 {
		result.AddError("shell.command_timeout", "must not be negative")
	}
	switch sc.Mode {
	case ShellModeExec:
		if len(sc.Command) == 0 {
			result.AddError("shell.command", "exec mode needs a command")
		}
	case ShellModeSSH:
		validateSSH(&sc.SSH, result)
	case ShellModeNone:
		result.AddWarning("shell.mode", "privileged fallback disabled; restricted sysfs files read as defaults")
	default:
		result.AddError("shell.mode", fmt.Sprintf("unknown mode %q", sc.Mode))
	}
}

func validateSSH(sc *SSHConfig, result *ValidationResult) {
	if sc.Host == "" {
		result.AddError("shell.ssh.host", "required in ssh mode")
	}
	if sc.User == "" {
		result.AddError("shell.ssh.user", "required in ssh mode")
	}
	if sc.Port < 0 || sc.Port > 65535 {
		result.AddError("shell.ssh.port", fmt.Sprintf("out of range: %d", sc.Port))
	}
	if sc.Password == "" && sc.KeyFile == "" && !sc.UseAgent {
		result.AddError("shell.ssh", "no authentication method (password, key_file or use_agent)")
	}
	if sc.KnownHostsFile == "" && !sc.InsecureIgnoreHostKey {
		result.AddError("shell.ssh.known_hosts", "required unless insecure_ignore_host_key is set")
	}
	if sc.InsecureIgnoreHostKey {
		result.AddWarning("shell.ssh.insecure_ignore_host_key", "host key verification disabled")
	}
}

func validateLog(lc *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(lc.Level); err != nil {
		result.AddError("log.level", err.Error())
	}
	switch lc.Format {
	case "", "text", "json":
	default:
		result.AddError("log.format", fmt.Sprintf("unknown format %q (expected text or json)", lc.Format))
	}
	if lc.MaxSize < 0 || lc.MaxBackups < 0 || lc.MaxAge < 0 {
		result.AddError("log", "rotation limits must not be negative")
	}
}

func validateServer(sc *ServerConfig, result *ValidationResult) {
	if sc.Listen != "" {
		if _, _, err := net.SplitHostPort(sc.Listen); err != nil {
			result.AddError("server.listen", err.Error())
		}
	}
	if !strings.HasPrefix(sc.MetricsPath, "/") {
		result.AddError("server.metrics_path", "must start with /")
	}
}
