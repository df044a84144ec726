package session

import (
	"bytes"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"golang.org/x/crypto/ssh"

	"github.com/asheshgoplani/panel-deck/internal/logging"
)

var sshLog = logging.ForComponent(logging.CompSSH)

// transport is the SSH capability the session drives: one-shot remote
// commands with exit-status reporting, and teardown.
type transport interface {
	// Run executes cmd on the device and returns an error when the command
	// could not run or exited non-zero (stderr included in the error).
	Run(cmd string) error
	Close() error
}

// transportDialer opens a transport against a device.
type transportDialer func(host string, cfg SSHSettings) (transport, error)

// sshTransport wraps an x/crypto/ssh client. Each Run opens a fresh session
// channel on the shared connection, matching the device's one-command-per-
// channel contract.
type sshTransport struct {
	client *ssh.Client
	host   string
}

// dialSSH connects with the fixed credential pair. Embedded devices reflash
// and regenerate host keys constantly, so any host key is accepted.
func dialSSH(host string, cfg SSHSettings) (transport, error) {
	config := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.ConnectTimeout(),
	}

	addr := net.JoinHostPort(host, strconv.Itoa(cfg.Port))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}

	sshLog.Info("ssh_connected", slog.String("addr", addr), slog.String("user", cfg.Username))
	return &sshTransport{client: client, host: host}, nil
}

func (t *sshTransport) Run(cmd string) error {
	sess, err := t.client.NewSession()
	if err != nil {
		return fmt.Errorf("ssh session on %s: %w", t.host, err)
	}
	defer sess.Close()

	var out bytes.Buffer
	sess.Stdout = &out
	sess.Stderr = &out

	sshLog.Debug("exec", slog.String("host", t.host), slog.String("cmd", cmd))
	if err := sess.Run(cmd); err != nil {
		return fmt.Errorf("exec %q on %s: %w: %s", cmd, t.host, err, bytes.TrimSpace(out.Bytes()))
	}
	return nil
}

func (t *sshTransport) Close() error {
	return t.client.Close()
}
