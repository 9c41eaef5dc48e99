package sshx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"

	"labfleet/internal/domain"
)

// client wraps an *ssh.Client. Each Run opens a fresh session over the
// already-negotiated transport.
type client struct {
	ssh  *ssh.Client
	host string
}

var _ Client = (*client)(nil)

func (c *client) Run(ctx context.Context, command string) (*Result, error) {
	return c.RunInput(ctx, command, nil)
}

func (c *client) RunInput(ctx context.Context, command string, stdin io.Reader) (*Result, error) {
	session, err := c.ssh.NewSession()
	if err != nil {
		return nil, domain.NewError(domain.KindOf(err), c.host, fmt.Errorf("new session: %w", err))
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = stdin
	}

	if err := session.Start(command); err != nil {
		return nil, domain.NewError(domain.KindOf(err), c.host, fmt.Errorf("start command: %w", err))
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case err := <-done:
		result := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				// The command ran; a non-zero status is an outcome,
				// not a transport failure.
				result.ExitCode = exitErr.ExitStatus()
				return result, nil
			}
			return nil, domain.NewError(domain.KindOf(err), c.host, fmt.Errorf("command: %w", err))
		}
		return result, nil

	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, domain.NewError(domain.KindTimeout, c.host, ctx.Err())
	}
}

// Ping sends an SSH keepalive request and waits for the reply, proving
// the transport is still multiplexing without opening a session.
func (c *client) Ping(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, _, err := c.ssh.SendRequest("keepalive@openssh.com", true, nil)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return domain.NewError(domain.KindOf(err), c.host, fmt.Errorf("keepalive: %w", err))
		}
		return nil
	case <-ctx.Done():
		return domain.NewError(domain.KindTimeout, c.host, ctx.Err())
	}
}

func (c *client) Close() error {
	return c.ssh.Close()
}
