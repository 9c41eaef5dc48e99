// Package cache persists device identities between runs.
//
// The store is a single JSON snapshot at a well-known path. Every write
// rewrites the whole file through a temp-file-and-rename cycle so a crash
// mid-write can never leave a truncated or unparsable file behind. A file
// that fails to parse at open time is backed up and the store starts
// empty; corruption is never fatal to the process.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"labfleet/internal/domain"
)

// Store is a durable, expiring map of address -> device identity.
// All methods are safe for concurrent use.
type Store struct {
	path        string
	ttl         time.Duration
	livenessTTL time.Duration
	now         func() time.Time
	log         zerolog.Logger

	mu      sync.Mutex
	entries map[string]domain.Identity
}

// Option configures a Store.
type Option func(*Store)

// WithClock substitutes the time source, used by expiry tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLivenessTTL sets the shorter window applied to last-contact facts.
func WithLivenessTTL(d time.Duration) Option {
	return func(s *Store) { s.livenessTTL = d }
}

// Open loads the snapshot at path, recovering from corruption by backing
// the bad file up and starting empty. An empty path yields an in-memory
// store that never touches disk.
func Open(path string, ttl time.Duration, log zerolog.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		path:        path,
		ttl:         ttl,
		livenessTTL: ttl,
		now:         time.Now,
		log:         log,
		entries:     make(map[string]domain.Identity),
	}
	for _, opt := range opts {
		opt(s)
	}

	if path == "" {
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}

	if err := json.Unmarshal(data, &s.entries); err != nil {
		corrupt := domain.NewError(domain.KindCacheCorrupt, path, err)
		s.log.Warn().Err(corrupt).Str("path", path).Msg("device cache unreadable, resetting")
		if backupErr := backupCorrupt(path); backupErr != nil {
			s.log.Warn().Err(backupErr).Msg("could not back up corrupt cache")
		}
		s.entries = make(map[string]domain.Identity)
		// Replace the corrupt file immediately so a crash before the first
		// write cannot re-trigger the reset and clobber the backup.
		if persistErr := s.persistLocked(); persistErr != nil {
			s.log.Warn().Err(persistErr).Msg("could not reset cache snapshot")
		}
	}

	return s, nil
}

// backupCorrupt preserves the unparsable snapshot next to the live path.
func backupCorrupt(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path+".bak", data, 0o644)
}

// Get returns the identity for an address. Entries older than the TTL are
// treated as absent; callers re-derive and Put again.
func (s *Store) Get(address string) (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[address]
	if !ok || s.expired(entry) {
		return domain.Identity{}, false
	}
	if s.now().Sub(entry.LastContact) > s.livenessTTL {
		// Identity facts remain valid but the liveness fact has aged out.
		entry.LastContact = time.Time{}
	}
	return entry, true
}

// Put stores the identity for an address, stamping it and persisting a new
// snapshot. Writes are serialized store-wide; last writer wins per address.
func (s *Store) Put(address string, id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id.Address = address
	id.CachedAt = s.now()
	s.entries[address] = id

	return s.persistLocked()
}

// All returns every non-expired entry, keyed by address. Expired entries
// may still exist on disk until the next write compacts them.
func (s *Store) All() map[string]domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]domain.Identity, len(s.entries))
	for addr, entry := range s.entries {
		if s.expired(entry) {
			continue
		}
		out[addr] = entry
	}
	return out
}

// Remove deletes the entry for an address, reporting whether it existed.
func (s *Store) Remove(address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[address]; !ok {
		return false, nil
	}
	delete(s.entries, address)
	return true, s.persistLocked()
}

// Flush compacts expired entries and writes a fresh snapshot.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for addr, entry := range s.entries {
		if s.expired(entry) {
			delete(s.entries, addr)
		}
	}
	return s.persistLocked()
}

// Close flushes and releases the store.
func (s *Store) Close() error {
	return s.Flush()
}

// Len reports the number of entries physically held, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) expired(entry domain.Identity) bool {
	return s.now().Sub(entry.CachedAt) > s.ttl
}

// persistLocked writes the whole map to a temp file and atomically renames
// it over the live snapshot. Callers must hold s.mu.
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open cache temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write cache: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync cache: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close cache temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}
