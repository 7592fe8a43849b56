package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// EnvPrefix prefixes environment variables that override directives, for
// example TAPWATCH_INTERFACE or TAPWATCH_POLL_ACTIVE.
const EnvPrefix = "TAPWATCH_"

// envVarPattern matches environment variable references in configuration values.
// Supports formats:
//   - ${VAR_NAME} - standard shell-like format
//   - ${VAR_NAME:-default} - with default value if unset or empty
//   - $VAR_NAME - simple format (word characters only)
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([a-zA-Z_][a-zA-Z0-9_]*)`)

// ExpandEnv expands environment variable references in s. Unset variables
// without a default expand to the empty string.
func ExpandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if strings.HasPrefix(match, "${") {
			inner := match[2 : len(match)-1]
			if name, def, ok := strings.Cut(inner, ":-"); ok {
				if val := os.Getenv(name); val != "" {
					return val
				}
				return def
			}
			return os.Getenv(inner)
		}
		return os.Getenv(match[1:])
	})
}

// ExpandEnvConfig expands environment references in every free-form
// string of cfg: interface, shell command, SSH settings, log file, listen
// address and sysfs root.
func ExpandEnvConfig(cfg *Config) {
	for _, s := range []*string{
		&cfg.Interface,
		&cfg.Shell.SSH.Host,
		&cfg.Shell.SSH.User,
		&cfg.Shell.SSH.Password,
		&cfg.Shell.SSH.KeyFile,
		&cfg.Shell.SSH.Passphrase,
		&cfg.Shell.SSH.KnownHostsFile,
		&cfg.Log.File,
		&cfg.Server.Listen,
		&cfg.SysRoot,
	} {
		*s = ExpandEnv(*s)
	}
	for i, arg := range cfg.Shell.Command {
		cfg.Shell.Command[i] = ExpandEnv(arg)
	}
}

// ApplyEnvOverrides applies TAPWATCH_* entries of environ (in os.Environ
// form) on top of cfg. Unknown names are ignored.
func ApplyEnvOverrides(cfg *Config, environ []string) error {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
		if _, err := apply(cfg, key, value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
