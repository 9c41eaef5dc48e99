// Package pool keeps one multiplexed SSH transport per device so repeated
// commands and transfers skip renegotiation. The pool is process-local
// and unbounded; handles die with the process or with their transport,
// never across restarts.
package pool

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"labfleet/internal/sshx"
)

// Key identifies a pooled connection.
type Key struct {
	Address   string
	Principal string
	Port      int
}

// Pool hands out live Clients, establishing them lazily on first use.
// Acquisition is serialized per key so operations against different
// devices never block each other.
type Pool struct {
	dialer sshx.Dialer
	log    zerolog.Logger

	mu      sync.Mutex
	entries map[Key]*entry
}

type entry struct {
	mu     sync.Mutex
	client sshx.Client
}

// New creates an empty pool backed by the given dialer.
func New(dialer sshx.Dialer, log zerolog.Logger) *Pool {
	return &Pool{
		dialer:  dialer,
		log:     log,
		entries: make(map[Key]*entry),
	}
}

// Acquire returns the pooled client for key, dialing a new transport when
// none exists or the existing one no longer answers a keepalive. The
// returned client stays owned by the pool; callers must not Close it.
func (p *Pool) Acquire(ctx context.Context, key Key, cfg sshx.Config) (sshx.Client, error) {
	e := p.entryFor(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		if err := e.client.Ping(ctx); err == nil {
			return e.client, nil
		}
		p.log.Debug().
			Str("address", key.Address).
			Str("principal", key.Principal).
			Msg("pooled connection dead, re-establishing")
		e.client.Close()
		e.client = nil
	}

	client, err := p.dialer.Dial(ctx, key.Address, key.Port, cfg)
	if err != nil {
		return nil, err
	}
	e.client = client

	p.log.Debug().
		Str("address", key.Address).
		Str("principal", key.Principal).
		Int("port", key.Port).
		Msg("pooled connection established")

	return client, nil
}

// Peek returns the current client for key without dialing or liveness
// checking, or nil when none is pooled.
func (p *Pool) Peek(key Key) sshx.Client {
	p.mu.Lock()
	e, ok := p.entries[key]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client
}

// Invalidate drops the pooled client for key, closing its transport.
func (p *Pool) Invalidate(key Key) {
	p.mu.Lock()
	e, ok := p.entries[key]
	p.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		e.client.Close()
		e.client = nil
	}
}

// Len reports how many distinct keys hold a live entry slot.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// CloseAll tears down every pooled transport, typically at shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	entries := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.entries = make(map[Key]*entry)
	p.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		if e.client != nil {
			e.client.Close()
			e.client = nil
		}
		e.mu.Unlock()
	}
}

// entryFor returns the entry slot for key, creating it under the map lock.
func (p *Pool) entryFor(key Key) *entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[key]
	if !ok {
		e = &entry{}
		p.entries[key] = e
	}
	return e
}
