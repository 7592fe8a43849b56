package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// directive applies one flat key to a Config. The legacy parser, the Lua
// parser and TAPWATCH_* environment overrides share these keys.
type directive func(cfg *Config, value string) error

var directives = map[string]directive{
	"interface": func(c *Config, v string) error { c.Interface = v; return nil },
	"poll_active": func(c *Config, v string) error {
		return setDuration(&c.Polling.Active, v)
	},
	"poll_idle": func(c *Config, v string) error {
		return setDuration(&c.Polling.Idle, v)
	},
	"shell_mode": func(c *Config, v string) error {
		m, err := ParseShellMode(v)
		if err != nil {
			return err
		}
		c.Shell.Mode = m
		return nil
	},
	"shell_command": func(c *Config, v string) error {
		c.Shell.Command = strings.Fields(v)
		return nil
	},
	"command_timeout": func(c *Config, v string) error {
		return setDuration(&c.Shell.CommandTimeout, v)
	},
	"ssh_host":     func(c *Config, v string) error { c.Shell.SSH.Host = v; return nil },
	"ssh_port":     func(c *Config, v string) error { return setInt(&c.Shell.SSH.Port, v) },
	"ssh_user":     func(c *Config, v string) error { c.Shell.SSH.User = v; return nil },
	"ssh_password": func(c *Config, v string) error { c.Shell.SSH.Password = v; return nil },
	"ssh_key":      func(c *Config, v string) error { c.Shell.SSH.KeyFile = v; return nil },
	"ssh_passphrase": func(c *Config, v string) error {
		c.Shell.SSH.Passphrase = v
		return nil
	},
	"ssh_agent":       func(c *Config, v string) error { c.Shell.SSH.UseAgent = parseBool(v); return nil },
	"ssh_known_hosts": func(c *Config, v string) error { c.Shell.SSH.KnownHostsFile = v; return nil },
	"ssh_insecure": func(c *Config, v string) error {
		c.Shell.SSH.InsecureIgnoreHostKey = parseBool(v)
		return nil
	},
	"ssh_timeout": func(c *Config, v string) error {
		return setDuration(&c.Shell.SSH.DialTimeout, v)
	},
	"log_level":       func(c *Config, v string) error { c.Log.Level = strings.ToLower(v); return nil },
	"log_format":      func(c *Config, v string) error { c.Log.Format = strings.ToLower(v); return nil },
	"log_file":        func(c *Config, v string) error { c.Log.File = v; return nil },
	"log_max_size":    func(c *Config, v string) error { return setInt(&c.Log.MaxSize, v) },
	"log_max_backups": func(c *Config, v string) error { return setInt(&c.Log.MaxBackups, v) },
	"log_max_age":     func(c *Config, v string) error { return setInt(&c.Log.MaxAge, v) },
	"listen":          func(c *Config, v string) error { c.Server.Listen = v; return nil },
	"metrics_path":    func(c *Config, v string) error { c.Server.MetricsPath = v; return nil },
	"sys_root":        func(c *Config, v string) error { c.SysRoot = v; return nil },
}

// Keys returns the recognised directive names, sorted.
func Keys() []string {
	keys := make([]string, 0, len(directives))
	for k := range directives {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// apply sets key on cfg. Unknown keys are ignored and reported as false.
func apply(cfg *Config, key, value string) (bool, error) {
	d, ok := directives[strings.ToLower(key)]
	if !ok {
		return false, nil
	}
	if err := d(cfg, strings.TrimSpace(value)); err != nil {
		return true, fmt.Errorf("invalid %s: %w", key, err)
	}
	return true, nil
}

// parseDuration accepts Go durations ("500ms", "2.5s") and bare numbers,
// which are taken as seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a duration: %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func setDuration(dst *time.Duration, s string) error {
	d, err := parseDuration(s)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func setInt(dst *int, s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

// parseBool parses a boolean value from common string representations.
// Accepts: yes, no, true, false, 1, 0
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1", "on":
		return true
	default:
		return false
	}
}
