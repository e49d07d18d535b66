package ssh

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/openfroyo/froyo-keystone/pkg/transports"
)

// Runner executes commands on the remote host. The environment is passed
// on the command line through env(1) because most sshd configurations
// reject AcceptEnv for OS_* variables.
type Runner struct {
	client *Client
}

// NewRunner creates a runner over the given client.
func NewRunner(client *Client) *Runner {
	return &Runner{client: client}
}

// Run executes the command remotely and waits for it to exit.
func (r *Runner) Run(ctx context.Context, command transports.Command) (*transports.Result, error) {
	session, err := r.client.newSession(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- session.Run(RemoteCommandLine(command))
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = session.Signal(ssh.SIGKILL)
		}
		return nil, &transports.TransportError{Op: "exec", Err: ctx.Err()}
	case err = <-done:
	}

	result := &transports.Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		StartedAt: start,
		Duration:  time.Since(start),
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return nil, &transports.TransportError{Op: "exec", Err: err, IsTemporary: true}
	}
	return result, nil
}

// RemoteCommandLine renders the command as a single POSIX shell line.
func RemoteCommandLine(command transports.Command) string {
	var parts []string
	if len(command.Env) > 0 {
		parts = append(parts, "env")
		for _, kv := range command.Env {
			parts = append(parts, shellQuote(kv))
		}
	}
	parts = append(parts, shellQuote(command.Path))
	for _, arg := range command.Args {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:@,+%", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
