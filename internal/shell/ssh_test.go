package shell

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSSHOptionsAddress(t *testing.T) {
	if got := (SSHOptions{Host: "router"}).Address(); got != "router:22" {
		t.Errorf("Address() = %q, want router:22", got)
	}
	if got := (SSHOptions{Host: "::1", Port: 2222}).Address(); got != "[::1]:2222" {
		t.Errorf("Address() = %q, want [::1]:2222", got)
	}
}

func TestSSHOptionsClientConfig(t *testing.T) {
	tests := []struct {
		name    string
		opts    SSHOptions
		wantErr bool
	}{
		{"missing host", SSHOptions{User: "root", Password: "x", InsecureIgnoreHostKey: true}, true},
		{"missing user", SSHOptions{Host: "h", Password: "x", InsecureIgnoreHostKey: true}, true},
		{"no auth", SSHOptions{Host: "h", User: "root", InsecureIgnoreHostKey: true}, true},
		{"no host key policy", SSHOptions{Host: "h", User: "root", Password: "x"}, true},
		{"unreadable key", SSHOptions{Host: "h", User: "root", KeyFile: "/nonexistent/key", InsecureIgnoreHostKey: true}, true},
		{"password insecure", SSHOptions{Host: "h", User: "root", Password: "x", InsecureIgnoreHostKey: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tt.opts.ClientConfig()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ClientConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (cfg.User != tt.opts.User || len(cfg.Auth) != 1 || cfg.Timeout == 0) {
				t.Errorf("unexpected config: %+v", cfg)
			}
		})
	}
}

func TestSSHOptionsKnownHosts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_hosts")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := SSHOptions{Host: "h", User: "root", Password: "x", KnownHostsFile: path}.ClientConfig()
	if err != nil {
		t.Fatalf("ClientConfig() error = %v", err)
	}
	if cfg.HostKeyCallback == nil {
		t.Error("HostKeyCallback not set")
	}
}

func TestSSHLauncherFailureSurfacesAsUnavailable(t *testing.T) {
	s := NewSession(SSHLauncher{Options: SSHOptions{Host: "h", User: "root"}})
	_, err := s.Execute(context.Background(), "true")
	if !errors.Is(err, ErrShellUnavailable) {
		t.Fatalf("error = %v, want ErrShellUnavailable", err)
	}
}
