// Package sshxtest provides scriptable fakes for the sshx transport,
// shared by pool, probe, and access tests.
package sshxtest

import (
	"context"
	"errors"
	"io"
	"sync"

	"labfleet/internal/domain"
	"labfleet/internal/sshx"
)

// FakeClient is a Client whose behavior is scripted per test.
type FakeClient struct {
	mu sync.Mutex

	// ID distinguishes handles in pool-reuse assertions.
	ID string
	// Dead makes Ping and Run fail as a broken transport would.
	Dead bool
	// RunFunc overrides command execution; the default echoes the command.
	RunFunc func(ctx context.Context, command string, stdin io.Reader) (*sshx.Result, error)

	Commands []string
	Closed   bool
	Pings    int
}

var _ sshx.Client = (*FakeClient)(nil)

func (c *FakeClient) Run(ctx context.Context, command string) (*sshx.Result, error) {
	return c.RunInput(ctx, command, nil)
}

func (c *FakeClient) RunInput(ctx context.Context, command string, stdin io.Reader) (*sshx.Result, error) {
	c.mu.Lock()
	c.Commands = append(c.Commands, command)
	dead := c.Dead
	fn := c.RunFunc
	c.mu.Unlock()

	if dead {
		return nil, domain.NewError(domain.KindRefused, c.ID, errors.New("transport is dead"))
	}
	if fn != nil {
		return fn(ctx, command, stdin)
	}
	return &sshx.Result{Stdout: command}, nil
}

func (c *FakeClient) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Pings++
	if c.Dead {
		return domain.NewError(domain.KindRefused, c.ID, errors.New("transport is dead"))
	}
	return nil
}

func (c *FakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// Kill marks the client dead, simulating a dropped transport.
func (c *FakeClient) Kill() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Dead = true
}

// CommandLog returns a copy of the commands run so far.
func (c *FakeClient) CommandLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.Commands))
	copy(out, c.Commands)
	return out
}

// DialRecord captures one Dial invocation.
type DialRecord struct {
	Host string
	Port int
	User string
}

// FakeDialer scripts Dial outcomes per host and records every attempt.
type FakeDialer struct {
	mu sync.Mutex

	// DialFunc decides the outcome; the default hands out a live FakeClient.
	DialFunc func(ctx context.Context, host string, port int, cfg sshx.Config) (sshx.Client, error)

	Dials []DialRecord
}

var _ sshx.Dialer = (*FakeDialer)(nil)

func (d *FakeDialer) Dial(ctx context.Context, host string, port int, cfg sshx.Config) (sshx.Client, error) {
	d.mu.Lock()
	d.Dials = append(d.Dials, DialRecord{Host: host, Port: port, User: cfg.User})
	fn := d.DialFunc
	d.mu.Unlock()

	if fn != nil {
		return fn(ctx, host, port, cfg)
	}
	return &FakeClient{ID: host}, nil
}

// DialCount returns how many dials have been attempted.
func (d *FakeDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Dials)
}

// DialLog returns a copy of recorded dials.
func (d *FakeDialer) DialLog() []DialRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DialRecord, len(d.Dials))
	copy(out, d.Dials)
	return out
}
