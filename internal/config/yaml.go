package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLParser parses YAML configuration files:
//
//	interface: tap0
//	polling:
//	  active: 1s
//	  idle: 2500ms
//	shell:
//	  mode: exec
//	  command: [sudo, -n, sh]
//
// Durations are Go duration strings. Unknown fields are rejected.
type YAMLParser struct{}

// NewYAMLParser creates a new YAMLParser instance.
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

// Parse decodes content on top of the defaults.
func (p *YAMLParser) Parse(content []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}
	if _, err := ParseShellMode(string(cfg.Shell.Mode)); err != nil {
		return nil, err
	}
	if cfg.Shell.Mode == "" {
		cfg.Shell.Mode = ShellModeExec
	}
	return &cfg, nil
}

// EncodeYAML renders cfg as YAML, the format written by -dump-config.
// Secrets are masked.
func EncodeYAML(cfg *Config) ([]byte, error) {
	c := *cfg
	if c.Shell.SSH.Password != "" {
		c.Shell.SSH.Password = redacted
	}
	if c.Shell.SSH.Passphrase != "" {
		c.Shell.SSH.Passphrase = redacted
	}
	return yaml.Marshal(&c)
}

const redacted = "********"
