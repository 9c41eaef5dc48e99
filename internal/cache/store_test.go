package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labfleet/internal/domain"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestPutGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.json")
	store, err := Open(path, 7*24*time.Hour, testLogger())
	require.NoError(t, err)

	id := domain.Identity{
		Hostname:       "imx8mm-jaguar-2240a",
		Principal:      "fio",
		Classification: domain.ClassificationGeneric,
		Source:         domain.SourceDiscovered,
	}
	require.NoError(t, store.Put("10.42.0.7", id))

	got, ok := store.Get("10.42.0.7")
	require.True(t, ok)
	assert.Equal(t, "imx8mm-jaguar-2240a", got.Hostname)
	assert.Equal(t, "10.42.0.7", got.Address, "Put stamps the key address")
	assert.False(t, got.CachedAt.IsZero())

	// Survives a reopen.
	require.NoError(t, store.Close())
	reopened, err := Open(path, 7*24*time.Hour, testLogger())
	require.NoError(t, err)
	got, ok = reopened.Get("10.42.0.7")
	require.True(t, ok)
	assert.Equal(t, "fio", got.Principal)
}

func TestGetExpiredTreatedAsAbsent(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }

	store, err := Open("", time.Hour, testLogger(), WithClock(clock))
	require.NoError(t, err)

	require.NoError(t, store.Put("10.42.0.7", domain.Identity{Hostname: "stale-board"}))

	_, ok := store.Get("10.42.0.7")
	require.True(t, ok)

	current = current.Add(time.Hour + time.Minute)

	_, ok = store.Get("10.42.0.7")
	assert.False(t, ok, "expired entry must read as absent")
	assert.Equal(t, 1, store.Len(), "entry physically remains until compaction")

	require.NoError(t, store.Flush())
	assert.Equal(t, 0, store.Len())
}

func TestAllFiltersExpired(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }

	store, err := Open("", time.Hour, testLogger(), WithClock(clock))
	require.NoError(t, err)

	require.NoError(t, store.Put("10.42.0.1", domain.Identity{Hostname: "old"}))
	current = current.Add(2 * time.Hour)
	require.NoError(t, store.Put("10.42.0.2", domain.Identity{Hostname: "fresh"}))

	all := store.All()
	assert.Len(t, all, 1)
	assert.Contains(t, all, "10.42.0.2")
}

func TestLivenessAgesOutBeforeIdentity(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }

	store, err := Open("", 7*24*time.Hour, testLogger(),
		WithClock(clock), WithLivenessTTL(time.Hour))
	require.NoError(t, err)

	require.NoError(t, store.Put("10.42.0.7", domain.Identity{
		Hostname:    "board",
		LastContact: current,
	}))

	current = current.Add(2 * time.Hour)

	got, ok := store.Get("10.42.0.7")
	require.True(t, ok, "identity facts outlive the liveness window")
	assert.Equal(t, "board", got.Hostname)
	assert.True(t, got.LastContact.IsZero(), "stale liveness fact is dropped")
}

func TestRemove(t *testing.T) {
	store, err := Open("", time.Hour, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Put("10.42.0.7", domain.Identity{}))

	removed, err := store.Remove("10.42.0.7")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Remove("10.42.0.7")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCorruptFileBackedUpAndReset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := Open(path, time.Hour, testLogger())
	require.NoError(t, err, "corruption must not fail the process")
	assert.Equal(t, 0, store.Len())

	backup, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(backup))

	// The reset replaces the live file right away, so a restart before the
	// first write sees a valid empty snapshot instead of re-triggering the
	// backup and clobbering the evidence above.
	live, err := os.ReadFile(path)
	require.NoError(t, err)
	var snapshot map[string]domain.Identity
	require.NoError(t, json.Unmarshal(live, &snapshot))
	assert.Empty(t, snapshot)

	reopened, err := Open(path, time.Hour, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Len())

	backup, err = os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(backup), "reopen must not overwrite the preserved backup")
}

func TestSnapshotIsWholeFileAndParsable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.json")
	store, err := Open(path, time.Hour, testLogger())
	require.NoError(t, err)

	for _, addr := range []string{"10.42.0.1", "10.42.0.2", "10.42.0.3"} {
		require.NoError(t, store.Put(addr, domain.Identity{Hostname: "h-" + addr}))

		// After every write the on-disk file is a complete, parsable
		// snapshot; there is no in-place mutation to tear.
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var snapshot map[string]domain.Identity
		require.NoError(t, json.Unmarshal(data, &snapshot))
	}

	// No temp file is left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestConcurrentPuts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.json")
	store, err := Open(path, time.Hour, testLogger())
	require.NoError(t, err)

	var wg sync.WaitGroup
	addrs := []string{"10.42.0.1", "10.42.0.2", "10.42.0.3", "10.42.0.4", "10.42.0.5"}
	for _, addr := range addrs {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(a string) {
				defer wg.Done()
				_ = store.Put(a, domain.Identity{Hostname: "host-" + a})
			}(addr)
		}
	}
	wg.Wait()

	all := store.All()
	require.Len(t, all, len(addrs))
	for _, addr := range addrs {
		assert.Equal(t, "host-"+addr, all[addr].Hostname)
	}
}

func TestInMemoryStoreNeverTouchesDisk(t *testing.T) {
	store, err := Open("", time.Hour, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Put("10.0.0.1", domain.Identity{}))
	require.NoError(t, store.Close())
}
