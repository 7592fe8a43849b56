package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func noEnv() []string { return nil }

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := LoadWithEnv("", []string{"TAPWATCH_INTERFACE=tap2"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Interface != "tap2" || cfg.Polling.Active != DefaultActiveInterval {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tapwatch.conf")
	writeConfig(t, path, "poll_active 0\n")
	if _, err := LoadWithEnv(path, nil); err == nil {
		t.Error("Load() accepted a zero interval")
	}
}

func TestStoreReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tapwatch.conf")
	writeConfig(t, path, "interface tap0\n")

	s, err := NewStore(path, WithEnviron(noEnv))
	if err != nil {
		t.Fatal(err)
	}
	if s.Interface() != "tap0" || s.Path() != path {
		t.Fatalf("Interface() = %q", s.Interface())
	}

	writeConfig(t, path, "interface tap1\npoll_idle 5\n")
	cfg, err := s.Reload()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Interface != "tap1" || s.Interface() != "tap1" || s.Config().Polling.Idle != 5*time.Second {
		t.Errorf("after reload: %+v", s.Config())
	}

	writeConfig(t, path, "poll_active never\n")
	if _, err := s.Reload(); err == nil {
		t.Error("Reload() accepted a broken file")
	}
	if s.Interface() != "tap1" {
		t.Errorf("failed reload replaced config: %q", s.Interface())
	}
}

func TestStoreOverrideSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tapwatch.conf")
	writeConfig(t, path, "interface tap0\n")

	s, err := NewStore(path, WithEnviron(noEnv), WithOverride(func(c *Config) { c.Interface = "wlan0" }))
	if err != nil {
		t.Fatal(err)
	}
	writeConfig(t, path, "interface tap5\n")
	if _, err := s.Reload(); err != nil {
		t.Fatal(err)
	}
	if s.Interface() != "wlan0" {
		t.Errorf("Interface() = %q, want override", s.Interface())
	}

	bad, err := NewStore(path, WithEnviron(noEnv), WithOverride(func(c *Config) { c.Interface = "" }))
	if err == nil || bad != nil {
		t.Error("invalid override accepted")
	}
}

func TestStoreConfigIsACopy(t *testing.T) {
	s, err := NewStore("", WithEnviron(noEnv))
	if err != nil {
		t.Fatal(err)
	}
	c := s.Config()
	c.Shell.Command[0] = "doas"
	c.Interface = "x"
	if got := s.Config(); got.Shell.Command[0] != "su" || got.Interface != DefaultInterface {
		t.Errorf("Config() exposed internal state: %+v", got)
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"legacy", "tapwatch.conf", "interface tap0\n"},
		{"lua", "tapwatch.lua", `tapwatch.config = { interface = "tap0" }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			writeConfig(t, path, tt.content)
			s, err := NewStore(path, WithEnviron(noEnv))
			if err != nil {
				t.Fatal(err)
			}
			hammerStore(t, s)
		})
	}
}

// hammerStore reloads and reads s from many goroutines; run with -race.
func hammerStore(t *testing.T, s *Store) {
	t.Helper()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if cfg, err := s.Reload(); err != nil || cfg.Interface != "tap0" {
				t.Errorf("Reload() = %q, %v", cfg.Interface, err)
			}
		}()
		go func() {
			defer wg.Done()
			_ = s.Interface()
		}()
	}
	wg.Wait()
}
