// Package sysfs reads kernel-exposed files under /sys and /proc.
//
// Every primitive tries the unprivileged OS call first and falls back to the
// privileged shell, ending in a fixed default. The same code therefore works
// where /sys/class/net is world readable and where it is root-only; callers
// never see an error, only the default value.
package sysfs

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/opd-ai/tapwatch/internal/logging"
	"github.com/opd-ai/tapwatch/internal/shell"
)

// Reader implements the fallback read primitives.
type Reader struct {
	root   string
	shell  shell.Executor
	logger logging.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithRoot prefixes every path, so tests can serve a fake /sys tree.
func WithRoot(root string) Option {
	return func(r *Reader) { r.root = root }
}

// WithShell sets the privileged fallback. Without it only unprivileged
// reads are attempted.
func WithShell(e shell.Executor) Option {
	return func(r *Reader) { r.shell = e }
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(r *Reader) { r.logger = logging.OrNop(l) }
}

// New returns a Reader.
func New(opts ...Option) *Reader {
	r := &Reader{logger: logging.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// strategy is one way of answering a read; ok reports whether it produced a result.
type strategy[T any] func(path string) (value T, ok bool)

// firstOf runs strategies in order and returns the first produced value,
// or def when none succeeds.
func firstOf[T any](path string, def T, strategies ...strategy[T]) T {
	for _, s := range strategies {
		if v, ok := s(path); ok {
			return v
		}
	}
	return def
}

func (r *Reader) resolve(path string) string {
	if r.root == "" {
		return path
	}
	return filepath.Join(r.root, path)
}

// privileged runs command through the shell. ok is false when there is no
// shell or the session failed.
func (r *Reader) privileged(command string) (string, bool) {
	if r.shell == nil {
		return "", false
	}
	out, err := r.shell.Execute(context.Background(), command)
	if err != nil {
		r.logger.Debug("privileged read failed", "command", command, "error", err)
		return "", false
	}
	return out, true
}

// Exists reports whether path exists. A symlink counts as existing even
// when its target does not.
func (r *Reader) Exists(path string) bool {
	p := r.resolve(path)
	return firstOf(p, false,
		func(p string) (bool, bool) {
			_, err := os.Lstat(p)
			return true, err == nil
		},
		func(p string) (bool, bool) {
			q := shell.Quote(p)
			out, ok := r.privileged("{ [ -e " + q + " ] || [ -L " + q + " ]; } && echo 1 || echo 0")
			return strings.TrimSpace(out) == "1", ok
		},
	)
}

// ReadText returns the trimmed contents of path, or "" when it cannot be read.
func (r *Reader) ReadText(path string) string {
	p := r.resolve(path)
	text := firstOf(p, "",
		func(p string) (string, bool) {
			data, err := os.ReadFile(p)
			if err != nil {
				return "", false
			}
			return strings.TrimSpace(string(data)), true
		},
		func(p string) (string, bool) {
			out, ok := r.privileged("cat " + shell.Quote(p))
			return strings.TrimSpace(out), ok
		},
	)
	return text
}

// ReadUint64 returns path parsed as a decimal counter; unreadable or
// non-numeric content yields 0.
func (r *Reader) ReadUint64(path string) uint64 {
	return ParseUint64(r.ReadText(path))
}

// ReadSymlink returns the link text of path exactly as stored, without
// resolving it; "" when unreadable. The shell is authoritative because
// restricted sysfs links are not reliably readable unprivileged. The
// unprivileged read is used only when no shell is configured.
func (r *Reader) ReadSymlink(path string) string {
	p := r.resolve(path)
	if r.shell == nil {
		target, err := os.Readlink(p)
		if err != nil {
			return ""
		}
		return target
	}
	out, _ := r.privileged("readlink " + shell.Quote(p))
	return strings.TrimSpace(out)
}

// ListDir returns the entry names of path; empty when unreadable.
// Order is whatever the listing produced.
func (r *Reader) ListDir(path string) []string {
	p := r.resolve(path)
	return firstOf(p, []string{},
		func(p string) ([]string, bool) {
			entries, err := os.ReadDir(p)
			if err != nil {
				return nil, false
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Name())
			}
			return names, true
		},
		func(p string) ([]string, bool) {
			out, ok := r.privileged("ls " + shell.Quote(p))
			if !ok {
				return nil, false
			}
			var names []string
			for _, line := range strings.Split(out, "\n") {
				if name := strings.TrimSpace(line); name != "" {
					names = append(names, name)
				}
			}
			return names, true
		},
	)
}

// ParseUint64 parses a decimal counter, returning 0 on error.
func ParseUint64(s string) uint64 {
	v, _ := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	return v
}
