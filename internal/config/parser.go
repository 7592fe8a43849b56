package config

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Format names a configuration syntax.
type Format string

const (
	FormatLegacy Format = "legacy"
	FormatLua    Format = "lua"
	FormatYAML   Format = "yaml"
)

// Parser provides a unified interface for parsing configuration files.
// It detects the format from the file extension or, failing that, from
// the content.
type Parser struct {
	legacyParser *LegacyParser
	luaParser    *LuaConfigParser
	yamlParser   *YAMLParser
}

// NewParser creates a Parser that handles every supported format.
func NewParser() (*Parser, error) {
	luaParser, err := NewLuaConfigParser()
	if err != nil {
		return nil, fmt.Errorf("failed to create Lua parser: %w", err)
	}
	return &Parser{
		legacyParser: NewLegacyParser(),
		luaParser:    luaParser,
		yamlParser:   NewYAMLParser(),
	}, nil
}

// ParseFile reads and parses a configuration file.
func (p *Parser) ParseFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return p.ParseFormat(content, DetectFormat(path, content))
}

// ParseFromFS reads and parses a configuration file from fsys.
func (p *Parser) ParseFromFS(fsys fs.FS, path string) (*Config, error) {
	content, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config from FS %s: %w", path, err)
	}
	return p.ParseFormat(content, DetectFormat(path, content))
}

// Parse parses content, detecting the format from the content alone.
func (p *Parser) Parse(content []byte) (*Config, error) {
	return p.ParseFormat(content, DetectFormat("", content))
}

// ParseReader parses configuration in the given format from r.
func (p *Parser) ParseReader(r io.Reader, format Format) (*Config, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return p.ParseFormat(content, format)
}

// ParseFormat parses content in an explicit format.
func (p *Parser) ParseFormat(content []byte, format Format) (*Config, error) {
	switch format {
	case FormatLua:
		return p.luaParser.Parse(content)
	case FormatYAML:
		return p.yamlParser.Parse(content)
	case FormatLegacy:
		return p.legacyParser.Parse(content)
	default:
		return nil, fmt.Errorf("unknown format: %s (expected 'legacy', 'lua' or 'yaml')", format)
	}
}

// Close releases resources associated with the parser.
func (p *Parser) Close() error {
	if p.luaParser != nil {
		return p.luaParser.Close()
	}
	return nil
}

// luaConfigPattern matches "tapwatch.config =" at the start of a line, so
// a comment mentioning it does not switch formats.
var luaConfigPattern = regexp.MustCompile(`(?m)^\s*tapwatch\.config\s*=`)

// yamlKeyPattern matches a top-level "key:" mapping entry.
var yamlKeyPattern = regexp.MustCompile(`(?m)^[a-z_]+:(\s|$)`)

// DetectFormat picks a format from the file extension, then the content.
func DetectFormat(path string, content []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lua":
		return FormatLua
	case ".yaml", ".yml":
		return FormatYAML
	}
	switch {
	case luaConfigPattern.Match(content):
		return FormatLua
	case yamlKeyPattern.Match(content):
		return FormatYAML
	default:
		return FormatLegacy
	}
}
