package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWriterFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, slog.LevelWarn, "text")
	l.Info("hidden")
	l.Warn("shown", "iface", "tap0")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record leaked through warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "iface=tap0") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestNewWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, slog.LevelDebug, "json")
	l.With("component", "shell").Debug("spawned")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "spawned" || rec["component"] != "shell" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tapwatch.log")
	l, closer, err := New(Config{Level: "info", File: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Info("hello")
	if err := closer.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, closer, err := New(Config{Level: "loud"})
	if err == nil {
		t.Fatal("expected error for unknown level")
	}
	if closer == nil {
		t.Fatal("closer must never be nil")
	}
}

func TestOrNop(t *testing.T) {
	OrNop(nil).Info("discarded")
	var buf bytes.Buffer
	l := NewWriter(&buf, slog.LevelInfo, "")
	if OrNop(l) != Logger(l) {
		t.Error("OrNop should return a non-nil logger unchanged")
	}
}
