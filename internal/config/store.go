package config

import (
	"fmt"
	"os"
	"sync"
)

// Load reads path (defaults only when path is empty), expands environment
// references, applies TAPWATCH_* overrides and validates the result.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Environ())
}

// LoadWithEnv is Load with an explicit environment in os.Environ form.
func LoadWithEnv(path string, environ []string) (*Config, error) {
	var cfg *Config
	if path == "" {
		c := DefaultConfig()
		cfg = &c
	} else {
		parser, err := NewParser()
		if err != nil {
			return nil, err
		}
		defer parser.Close()
		if cfg, err = parser.ParseFile(path); err != nil {
			return nil, err
		}
	}

	ExpandEnvConfig(cfg)
	if err := ApplyEnvOverrides(cfg, environ); err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Store holds the current configuration and reloads it from disk. It is
// safe for concurrent use; the poll loop reads Interface every cycle while
// reloads happen on other goroutines. Reloads run one at a time.
type Store struct {
	reloadMu sync.Mutex
	mu       sync.RWMutex
	path     string
	cfg      Config
	environ  func() []string
	override func(*Config)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithEnviron replaces os.Environ as the source of TAPWATCH_* overrides.
func WithEnviron(environ func() []string) StoreOption {
	return func(s *Store) { s.environ = environ }
}

// WithOverride applies fn after every load, before validation of the
// stored value. Command line flags use it so they survive reloads.
func WithOverride(fn func(*Config)) StoreOption {
	return func(s *Store) { s.override = fn }
}

// NewStore loads path and returns a Store holding it.
func NewStore(path string, opts ...StoreOption) (*Store, error) {
	s := &Store{path: path, environ: os.Environ}
	for _, opt := range opts {
		opt(s)
	}
	cfg, err := s.load()
	if err != nil {
		return nil, err
	}
	s.cfg = *cfg
	return s, nil
}

func (s *Store) load() (*Config, error) {
	cfg, err := LoadWithEnv(s.path, s.environ())
	if err != nil {
		return nil, err
	}
	if s.override != nil {
		s.override(cfg)
		if err := ValidateConfig(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Path returns the file the store loads from.
func (s *Store) Path() string {
	return s.path
}

// Config returns a copy of the current configuration.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.cfg
	c.Shell.Command = append([]string(nil), s.cfg.Shell.Command...)
	return c
}

// Interface returns the currently configured interface name.
func (s *Store) Interface() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Interface
}

// Reload re-reads the file. On failure the current configuration is kept
// and the error returned.
func (s *Store) Reload() (Config, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	cfg, err := s.load()
	if err != nil {
		return s.Config(), fmt.Errorf("reload %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.cfg = *cfg
	s.mu.Unlock()
	return s.Config(), nil
}
