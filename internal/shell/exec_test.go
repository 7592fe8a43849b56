package shell

import (
	"context"
	"errors"
	"os/exec"
	"syscall"
	"testing"
	"time"
)

func TestExecKillRefusedDoesNotBlock(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("no sleep in PATH")
	}
	proc, err := ExecLauncher{Command: []string{"sleep", "30"}}.Launch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	p := proc.(*execProcess)
	t.Cleanup(func() { _ = p.cmd.Process.Kill() })
	// Stands in for su or sudo running as another user.
	p.kill = func() error { return syscall.EPERM }

	done := make(chan error, 1)
	go func() { done <- p.Kill() }()
	select {
	case err := <-done:
		if !errors.Is(err, syscall.EPERM) {
			t.Errorf("Kill() error = %v, want EPERM", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Kill() blocked on a process that ignored the signal")
	}

	if _, err := p.Stdout().Read(make([]byte, 1)); err == nil {
		t.Errorf("read after Kill() = %v, want a closed pipe", err)
	}
}

func TestExecKillReaps(t *testing.T) {
	proc, err := ExecLauncher{Command: []string{"sh"}}.Launch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := proc.Kill(); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	if state := proc.(*execProcess).cmd.ProcessState; state == nil {
		t.Error("process not reaped after Kill()")
	}
}
