package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// DefaultCommand is the elevation command used when none is configured.
var DefaultCommand = []string{"su"}

// ExecLauncher starts a local elevation command such as su or "sudo -n sh".
// The command must read shell commands from stdin and write their output to stdout.
type ExecLauncher struct {
	Command []string
	// Env, when non-nil, replaces the inherited environment.
	Env []string
}

// Launch starts the command. The process is deliberately not bound to ctx:
// it outlives the call that caused it to spawn.
func (l ExecLauncher) Launch(ctx context.Context) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	argv := l.Command
	if len(argv) == 0 {
		argv = DefaultCommand
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if l.Env != nil {
		cmd.Env = l.Env
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", argv[0], err)
	}
	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout, kill: cmd.Process.Kill}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	kill   func() error
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }

// Kill signals the process and reaps it; Wait also closes the stdout pipe,
// which unblocks any pending read. A setuid elevation command may refuse
// the signal (EPERM); then the pipes are closed and the process is reaped
// in the background whenever it exits.
func (p *execProcess) Kill() error {
	err := p.kill()
	if errors.Is(err, os.ErrProcessDone) {
		err = nil
	}
	if err != nil {
		_ = p.stdin.Close()
		_ = p.stdout.Close()
		go func() { _ = p.cmd.Wait() }()
		return fmt.Errorf("kill %s: %w", p.cmd.Path, err)
	}
	waitErr := p.cmd.Wait()
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return errors.Join(err, waitErr)
	}
	return err
}
