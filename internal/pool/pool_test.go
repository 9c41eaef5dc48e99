package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labfleet/internal/sshx"
	"labfleet/internal/sshx/sshxtest"
)

func newTestPool(dialer sshx.Dialer) *Pool {
	return New(dialer, zerolog.Nop())
}

func TestAcquireReusesLiveHandle(t *testing.T) {
	dialer := &sshxtest.FakeDialer{}
	p := newTestPool(dialer)

	key := Key{Address: "10.42.0.7", Principal: "fio", Port: 22}

	first, err := p.Acquire(context.Background(), key, sshx.Config{User: "fio"})
	require.NoError(t, err)

	second, err := p.Acquire(context.Background(), key, sshx.Config{User: "fio"})
	require.NoError(t, err)

	assert.Same(t, first, second, "sequential acquires must reuse the pooled handle")
	assert.Equal(t, 1, dialer.DialCount())
}

func TestAcquireRedialsAfterKill(t *testing.T) {
	dialer := &sshxtest.FakeDialer{}
	p := newTestPool(dialer)

	key := Key{Address: "10.42.0.7", Principal: "fio", Port: 22}

	first, err := p.Acquire(context.Background(), key, sshx.Config{User: "fio"})
	require.NoError(t, err)

	first.(*sshxtest.FakeClient).Kill()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	third, err := p.Acquire(ctx, key, sshx.Config{User: "fio"})
	require.NoError(t, err, "a dead handle is replaced, not surfaced")

	assert.NotSame(t, first, third)
	assert.Equal(t, 2, dialer.DialCount())
	assert.True(t, first.(*sshxtest.FakeClient).Closed, "dead transport is torn down")
}

func TestAcquireDistinctKeys(t *testing.T) {
	dialer := &sshxtest.FakeDialer{}
	p := newTestPool(dialer)

	a, err := p.Acquire(context.Background(), Key{Address: "10.42.0.7", Principal: "fio", Port: 22}, sshx.Config{User: "fio"})
	require.NoError(t, err)
	b, err := p.Acquire(context.Background(), Key{Address: "10.42.0.7", Principal: "root", Port: 22}, sshx.Config{User: "root"})
	require.NoError(t, err)

	assert.NotSame(t, a, b, "principal is part of the pool key")
	assert.Equal(t, 2, p.Len())
}

func TestAcquireDialFailurePropagates(t *testing.T) {
	dialer := &sshxtest.FakeDialer{
		DialFunc: func(ctx context.Context, host string, port int, cfg sshx.Config) (sshx.Client, error) {
			return nil, errors.New("connection refused")
		},
	}
	p := newTestPool(dialer)

	_, err := p.Acquire(context.Background(), Key{Address: "10.42.0.9", Principal: "fio", Port: 22}, sshx.Config{User: "fio"})
	require.Error(t, err)
	assert.Nil(t, p.Peek(Key{Address: "10.42.0.9", Principal: "fio", Port: 22}))
}

func TestConcurrentAcquireSameKeyDialsOnce(t *testing.T) {
	var dialCount int
	var dialMu sync.Mutex

	dialer := &sshxtest.FakeDialer{
		DialFunc: func(ctx context.Context, host string, port int, cfg sshx.Config) (sshx.Client, error) {
			dialMu.Lock()
			dialCount++
			dialMu.Unlock()
			time.Sleep(10 * time.Millisecond) // simulate handshake latency
			return &sshxtest.FakeClient{ID: host}, nil
		},
	}
	p := newTestPool(dialer)
	key := Key{Address: "10.42.0.7", Principal: "fio", Port: 22}

	var wg sync.WaitGroup
	clients := make([]sshx.Client, 8)
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := p.Acquire(context.Background(), key, sshx.Config{User: "fio"})
			require.NoError(t, err)
			clients[i] = c
		}(i)
	}
	wg.Wait()

	for _, c := range clients[1:] {
		assert.Same(t, clients[0], c)
	}
	assert.Equal(t, 1, dialCount, "per-key serialization collapses concurrent dials")
}

func TestInvalidateAndCloseAll(t *testing.T) {
	dialer := &sshxtest.FakeDialer{}
	p := newTestPool(dialer)
	key := Key{Address: "10.42.0.7", Principal: "fio", Port: 22}

	c, err := p.Acquire(context.Background(), key, sshx.Config{User: "fio"})
	require.NoError(t, err)

	p.Invalidate(key)
	assert.True(t, c.(*sshxtest.FakeClient).Closed)
	assert.Nil(t, p.Peek(key))

	c2, err := p.Acquire(context.Background(), key, sshx.Config{User: "fio"})
	require.NoError(t, err)

	p.CloseAll()
	assert.True(t, c2.(*sshxtest.FakeClient).Closed)
	assert.Equal(t, 0, p.Len())
}
