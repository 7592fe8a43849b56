package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHOptions describes how to reach and authenticate to a remote host whose
// interfaces are monitored through an elevated remote shell.
type SSHOptions struct {
	Host string
	Port int
	User string

	// Exactly one of Password, KeyFile or UseAgent selects the auth method.
	Password   string
	KeyFile    string
	Passphrase string
	UseAgent   bool

	// KnownHostsFile verifies the server key. When empty, InsecureIgnoreHostKey
	// must be set explicitly.
	KnownHostsFile        string
	InsecureIgnoreHostKey bool

	DialTimeout time.Duration
}

// Address returns host:port, defaulting the port to 22.
func (o SSHOptions) Address() string {
	port := o.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(o.Host, fmt.Sprint(port))
}

// ClientConfig builds the ssh.ClientConfig for o.
func (o SSHOptions) ClientConfig() (*ssh.ClientConfig, error) {
	if o.Host == "" {
		return nil, errors.New("ssh host is required")
	}
	if o.User == "" {
		return nil, errors.New("ssh user is required")
	}

	var auth []ssh.AuthMethod
	switch {
	case o.KeyFile != "":
		key, err := os.ReadFile(o.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		var signer ssh.Signer
		if o.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(o.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(key)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	case o.UseAgent:
		socket := os.Getenv("SSH_AUTH_SOCK")
		if socket == "" {
			return nil, errors.New("SSH_AUTH_SOCK not set")
		}
		auth = append(auth, ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
			conn, err := net.Dial("unix", socket)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to SSH agent: %w", err)
			}
			defer conn.Close()
			return agent.NewClient(conn).Signers()
		}))
	case o.Password != "":
		auth = append(auth, ssh.Password(o.Password))
	default:
		return nil, errors.New("no ssh authentication method configured")
	}

	var hostKey ssh.HostKeyCallback
	switch {
	case o.KnownHostsFile != "":
		cb, err := knownhosts.New(o.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
		hostKey = cb
	case o.InsecureIgnoreHostKey:
		hostKey = ssh.InsecureIgnoreHostKey()
	default:
		return nil, errors.New("ssh host key verification requires known_hosts or an explicit insecure opt-in")
	}

	timeout := o.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &ssh.ClientConfig{
		User:            o.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}, nil
}

// SSHLauncher opens the elevated shell on a remote host. Each launch dials a
// fresh connection; the connection lives exactly as long as the shell.
type SSHLauncher struct {
	Options SSHOptions
	// Command is started on the remote side, e.g. "sudo -n sh".
	// Empty requests the login shell.
	Command string
}

// Launch dials the host and starts the remote shell.
func (l SSHLauncher) Launch(ctx context.Context) (Process, error) {
	cfg, err := l.Options.ClientConfig()
	if err != nil {
		return nil, err
	}

	d := net.Dialer{Timeout: cfg.Timeout}
	addr := l.Options.Address()
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(c, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if l.Command == "" {
		err = session.Shell()
	} else {
		err = session.Start(l.Command)
	}
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("starting remote shell: %w", err)
	}

	return &sshProcess{client: client, session: session, stdin: stdin, stdout: stdout}, nil
}

type sshProcess struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

func (p *sshProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *sshProcess) Stdout() io.Reader     { return p.stdout }

func (p *sshProcess) Kill() error {
	_ = p.session.Signal(ssh.SIGKILL)
	sessErr := p.session.Close()
	if errors.Is(sessErr, io.EOF) {
		sessErr = nil
	}
	return errors.Join(sessErr, p.client.Close())
}
