package config

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// LegacyParser parses the plain key/value format:
//
//	# comment
//	interface tap0
//	poll_active 1.0
//	shell_command sudo -n sh
type LegacyParser struct{}

// NewLegacyParser creates a new LegacyParser instance.
func NewLegacyParser() *LegacyParser {
	return &LegacyParser{}
}

// Parse parses legacy content on top of the defaults.
func (p *LegacyParser) Parse(content []byte) (*Config, error) {
	cfg := DefaultConfig()
	scanner := bufio.NewScanner(bytes.NewReader(content))
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := p.parseDirective(&cfg, line, lineNum); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading configuration: %w", err)
	}
	return &cfg, nil
}

// parseDirective parses a single "key value" line. A bare key is treated
// as a boolean flag set to yes. Unknown directives are ignored.
func (p *LegacyParser) parseDirective(cfg *Config, line string, lineNum int) error {
	key, value, found := strings.Cut(line, " ")
	if !found {
		key, value, found = strings.Cut(line, "\t")
	}
	if !found {
		value = "yes"
	}
	if _, err := apply(cfg, key, value); err != nil {
		return fmt.Errorf("line %d: %w", lineNum, err)
	}
	return nil
}
