package tapwatch

import (
	"fmt"
	"strings"

	"github.com/opd-ai/tapwatch/internal/config"
	"github.com/opd-ai/tapwatch/internal/logging"
	"github.com/opd-ai/tapwatch/internal/shell"
)

// NewShell builds the privileged shell described by sc. It returns nil
// for ShellModeNone. The session is lazy: nothing is spawned until the
// first privileged read.
func NewShell(sc config.ShellConfig, logger logging.Logger) (*shell.Session, error) {
	opts := []shell.Option{
		shell.WithLogger(logger),
		shell.WithCommandTimeout(sc.CommandTimeout),
	}
	switch sc.Mode {
	case config.ShellModeNone:
		return nil, nil
	case config.ShellModeExec, "":
		command := sc.Command
		if len(command) == 0 {
			command = shell.DefaultCommand
		}
		return shell.NewSession(shell.ExecLauncher{Command: command}, opts...), nil
	case config.ShellModeSSH:
		launcher := shell.SSHLauncher{
			Options: shell.SSHOptions{
				Host:                  sc.SSH.Host,
				Port:                  sc.SSH.Port,
				User:                  sc.SSH.User,
				Password:              sc.SSH.Password,
				KeyFile:               sc.SSH.KeyFile,
				Passphrase:            sc.SSH.Passphrase,
				UseAgent:              sc.SSH.UseAgent,
				KnownHostsFile:        sc.SSH.KnownHostsFile,
				InsecureIgnoreHostKey: sc.SSH.InsecureIgnoreHostKey,
				DialTimeout:           sc.SSH.DialTimeout,
			},
			Command: strings.Join(sc.Command, " "),
		}
		// Surface configuration mistakes now rather than on the first read.
		if _, err := launcher.Options.ClientConfig(); err != nil {
			return nil, fmt.Errorf("ssh shell: %w", err)
		}
		return shell.NewSession(launcher, opts...), nil
	default:
		return nil, fmt.Errorf("unknown shell mode %q", sc.Mode)
	}
}
