// Package sshx is the transport layer for device access. It wraps
// golang.org/x/crypto/ssh behind small Dialer/Client interfaces so the
// prober, the connection pool, and the access router can share one
// multiplexed channel per device and tests can substitute fakes.
package sshx

import (
	"context"
	"io"
	"time"
)

// Result carries the outcome of one remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Client is a reusable channel to one device. Sessions are multiplexed
// over the underlying transport, so repeated commands skip renegotiation.
type Client interface {
	// Run executes a command and returns its output. A non-zero exit
	// status is reported through Result.ExitCode, not as an error.
	Run(ctx context.Context, command string) (*Result, error)
	// RunInput executes a command with stdin streamed from r. This is
	// how file payloads travel, including through a relay hop.
	RunInput(ctx context.Context, command string, stdin io.Reader) (*Result, error)
	// Ping performs a no-op round trip to check the transport is alive
	// without tearing it down.
	Ping(ctx context.Context) error
	Close() error
}

// Config describes how to authenticate a dial.
type Config struct {
	User     string
	Password string
	// PrivateKey is an optional PEM-encoded key tried before the password.
	PrivateKey []byte
	// Passphrase decrypts PrivateKey when set.
	Passphrase []byte
	Timeout    time.Duration
}

// Dialer establishes Clients. The production implementation speaks SSH;
// tests inject fakes to script outcomes per address.
type Dialer interface {
	Dial(ctx context.Context, host string, port int, cfg Config) (Client, error)
}
