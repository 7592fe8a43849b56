// Package shell manages the single long-lived elevated shell session that
// tapwatch uses for reads the current user is not allowed to perform.
//
// Elevation is expensive (and, with su on Android-style systems, visible to
// the user as a prompt), so one process is spawned lazily and reused for every
// command. Commands are framed by an echoed sentinel line and executed one at
// a time; any I/O fault tears the process down so the next call starts clean.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/tapwatch/internal/logging"
)

// ErrShellUnavailable is returned by Execute when the session could not be
// spawned or broke while a command was in flight.
var ErrShellUnavailable = errors.New("privileged shell unavailable")

// Sentinel is echoed after every command to mark the end of its output.
const Sentinel = "__TAPWATCH_END_OF_COMMAND__"

// Process is a running shell driven through its standard streams.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	// Kill terminates the process and releases its streams.
	Kill() error
}

// Launcher starts the elevated shell process.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// Executor runs one shell command and returns its standard output.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Stats counts session activity since creation.
type Stats struct {
	Spawns    int64
	Commands  int64
	Failures  int64
	Teardowns int64
	Alive     bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Session) { s.logger = logging.OrNop(l) }
}

// WithCommandTimeout bounds how long Execute waits for the sentinel.
// Zero disables the bound.
func WithCommandTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// Session is the elevated shell handle. The zero value is not usable; create
// one with NewSession. A Session is safe for concurrent use.
type Session struct {
	launcher Launcher
	logger   logging.Logger
	timeout  time.Duration

	mu   sync.Mutex
	proc Process
	w    *bufio.Writer
	r    *bufio.Reader

	alive     atomic.Bool
	spawns    atomic.Int64
	commands  atomic.Int64
	failures  atomic.Int64
	teardowns atomic.Int64
}

// NewSession returns a Session that spawns its process through l on first use.
func NewSession(l Launcher, opts ...Option) *Session {
	s := &Session{
		launcher: l,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute writes command to the shell followed by the sentinel echo and
// returns everything the command printed, lines joined by "\n".
// Errors wrap ErrShellUnavailable; the failed command is not retried.
func (s *Session) Execute(ctx context.Context, command string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands.Add(1)

	if s.proc == nil {
		if err := s.spawn(ctx); err != nil {
			s.failures.Add(1)
			return "", fmt.Errorf("%w: spawn: %v", ErrShellUnavailable, err)
		}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if _, err := fmt.Fprintf(s.w, "%s\necho '%s'\n", command, Sentinel); err != nil {
		return "", s.fail("write", command, err)
	}
	if err := s.w.Flush(); err != nil {
		return "", s.fail("flush", command, err)
	}

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	r := s.r
	go func() {
		out, err := readUntilSentinel(r)
		done <- result{out, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", s.fail("read", command, res.err)
		}
		return res.out, nil
	case <-ctx.Done():
		err := s.fail("wait", command, ctx.Err())
		// The reader unblocks once the process streams are closed.
		<-done
		return "", err
	}
}

// readUntilSentinel collects lines until one ends with the sentinel. Output
// that lacks a trailing newline shares the sentinel's line and is kept.
func readUntilSentinel(r *bufio.Reader) (string, error) {
	var lines []string
	for {
		line, err := r.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if strings.HasSuffix(trimmed, Sentinel) {
			if head := strings.TrimSuffix(trimmed, Sentinel); head != "" {
				lines = append(lines, head)
			}
			return strings.Join(lines, "\n"), nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		lines = append(lines, trimmed)
	}
}

func (s *Session) spawn(ctx context.Context) error {
	if s.launcher == nil {
		return errors.New("no launcher configured")
	}
	s.logger.Debug("spawning privileged shell")
	proc, err := s.launcher.Launch(ctx)
	if err != nil {
		s.logger.Warn("privileged shell spawn failed", "error", err)
		return err
	}
	s.proc = proc
	s.w = bufio.NewWriter(proc.Stdin())
	s.r = bufio.NewReader(proc.Stdout())
	s.alive.Store(true)
	s.spawns.Add(1)
	return nil
}

// fail tears the session down and wraps err. Caller holds s.mu.
func (s *Session) fail(stage, command string, err error) error {
	s.failures.Add(1)
	s.logger.Warn("privileged shell fault, tearing down session",
		"stage", stage, "command", command, "error", err)
	s.teardown()
	return fmt.Errorf("%w: %s: %v", ErrShellUnavailable, stage, err)
}

// teardown kills the process and forgets it. Caller holds s.mu.
func (s *Session) teardown() {
	if s.proc == nil {
		return
	}
	_ = s.proc.Stdin().Close()
	if err := s.proc.Kill(); err != nil {
		s.logger.Debug("privileged shell kill", "error", err)
	}
	s.proc = nil
	s.w = nil
	s.r = nil
	s.alive.Store(false)
	s.teardowns.Add(1)
}

// Shutdown asks the shell to exit, closes its streams and terminates it.
// It is a no-op when no process is running.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil {
		return nil
	}
	var errs []error
	if _, err := s.w.WriteString("exit\n"); err != nil {
		errs = append(errs, fmt.Errorf("write exit: %w", err))
	} else if err := s.w.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush exit: %w", err))
	}
	s.teardown()
	s.logger.Debug("privileged shell closed")
	return errors.Join(errs...)
}

// Alive reports whether a shell process is currently held.
func (s *Session) Alive() bool {
	return s.alive.Load()
}

// Stats returns a copy of the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		Spawns:    s.spawns.Load(),
		Commands:  s.commands.Load(),
		Failures:  s.failures.Load(),
		Teardowns: s.teardowns.Load(),
		Alive:     s.alive.Load(),
	}
}

// Quote wraps s in single quotes for the shell, escaping embedded quotes.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
