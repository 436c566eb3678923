package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMemoryClient(t *testing.T) (*MemoryClient, *time.Time) {
	t.Helper()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryClient(&MemoryConfig{CleanupInterval: 0}, zap.NewNop())
	c.now = func() time.Time { return now }
	t.Cleanup(func() { _ = c.Close() })

	return c, &now
}

func TestNewMemoryClient(t *testing.T) {
	t.Run("with config", func(t *testing.T) {
		c := NewMemoryClient(&MemoryConfig{CleanupInterval: 10 * time.Minute}, zap.NewNop())
		assert.NotNil(t, c.entries)
		assert.NotNil(t, c.cleanupTimer)
		c.Close()
	})

	t.Run("with nil config", func(t *testing.T) {
		c := NewMemoryClient(nil, nil)
		assert.NotNil(t, c.cleanupTimer)
		c.Close()
	})

	t.Run("without cleanup", func(t *testing.T) {
		c := NewMemoryClient(&MemoryConfig{CleanupInterval: 0}, zap.NewNop())
		assert.Nil(t, c.cleanupTimer)
		c.Close()
	})
}

func TestMemoryClientOperations(t *testing.T) {
	c, now := newTestMemoryClient(t)
	ctx := context.Background()

	t.Run("Set and Get", func(t *testing.T) {
		value := []byte("hello")
		require.NoError(t, c.Set(ctx, "k", value, time.Hour))
		value[0] = 'j'

		got, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(got))
	})

	t.Run("Get missing", func(t *testing.T) {
		_, err := c.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("TTL expiry", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "short", []byte("v"), time.Second))
		*now = now.Add(2 * time.Second)

		_, err := c.Get(ctx, "short")
		assert.ErrorIs(t, err, ErrNotFound)

		ok, err := c.Exists(ctx, "short")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Increment", func(t *testing.T) {
		n, err := c.Increment(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = c.Increment(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		_, err = c.Increment(ctx, "k")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("Expire", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "forever", []byte("v"), 0))
		ok, err := c.Expire(ctx, "forever", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		*now = now.Add(2 * time.Minute)
		ok, err = c.Exists(ctx, "forever")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = c.Expire(ctx, "forever", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "gone", []byte("v"), 0))
		n, err := c.Delete(ctx, "gone")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = c.Delete(ctx, "gone")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("Scan", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "session:a", []byte("1"), 0))
		require.NoError(t, c.Set(ctx, "session:b", []byte("2"), time.Second))
		require.NoError(t, c.Set(ctx, "lock:x", []byte("1"), 0))
		*now = now.Add(2 * time.Second)

		var keys []string
		err := c.Scan(ctx, "session:*", func(key string) error {
			keys = append(keys, key)
			// Callbacks may use the client.
			_, err := c.Get(ctx, key)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"session:a"}, keys)
	})

	t.Run("Scan rejects malformed pattern", func(t *testing.T) {
		err := c.Scan(ctx, "[", func(string) error { return nil })
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestMemoryClientLocks(t *testing.T) {
	c, now := newTestMemoryClient(t)
	ctx := context.Background()

	ok, err := c.AcquireLock(ctx, "job", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.AcquireLock(ctx, "job", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	*now = now.Add(11 * time.Second)
	ok, err = c.AcquireLock(ctx, "job", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, "job"))
	ok, err = c.Exists(ctx, "lock:job")
	require.NoError(t, err)
	assert.False(t, ok)

	t.Run("exactly one concurrent acquirer", func(t *testing.T) {
		var (
			wg      sync.WaitGroup
			holders atomic.Int32
		)
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, err := c.AcquireLock(ctx, "contended", time.Minute); err == nil && ok {
					holders.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), holders.Load())
	})
}

func TestMemoryClientCleanup(t *testing.T) {
	c, now := newTestMemoryClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	*now = now.Add(time.Minute)

	c.cleanup()

	c.mu.RLock()
	defer c.mu.RUnlock()
	assert.Len(t, c.entries, 1)
	assert.Contains(t, c.entries, "b")
}

func TestMemoryClientClosed(t *testing.T) {
	c := NewMemoryClient(nil, zap.NewNop())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	ctx := context.Background()
	assert.ErrorIs(t, c.Ping(ctx), ErrClosed)
	assert.ErrorIs(t, c.Set(ctx, "k", []byte("v"), 0), ErrClosed)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
}
