package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sh03m2a5h/edusync-session-go/internal/cache"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var errInjected = errors.New("injected failure")

func testOptions() Options {
	opts := DefaultOptions()
	opts.Secrets = []string{testSecret}
	return opts
}

// newRedisStore returns a store backed by miniredis through the real Redis client.
func newRedisStore(t *testing.T, mutate func(*Options)) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	cfg := cache.DefaultRedisConfig()
	cfg.Retry = cache.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	cfg.BreakerThreshold = 0
	client := cache.NewRedisClientWithOptions(&redis.Options{
		Addr:         mr.Addr(),
		DialTimeout:  200 * time.Millisecond,
		ReadTimeout:  200 * time.Millisecond,
		WriteTimeout: 200 * time.Millisecond,
	}, cfg, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = client.Close() })

	opts := testOptions()
	if mutate != nil {
		mutate(&opts)
	}
	store, err := NewStore(client, opts, zaptest.NewLogger(t))
	require.NoError(t, err)
	return store, mr
}

// newFaultStore returns a store over an in-memory client whose calls can be made to fail.
func newFaultStore(t *testing.T, mutate func(*Options)) (*Store, *faultClient) {
	t.Helper()

	mem := cache.NewMemoryClient(&cache.MemoryConfig{CleanupInterval: time.Hour}, zap.NewNop())
	t.Cleanup(func() { _ = mem.Close() })
	client := &faultClient{Client: mem}

	opts := testOptions()
	if mutate != nil {
		mutate(&opts)
	}
	store, err := NewStore(client, opts, zaptest.NewLogger(t))
	require.NoError(t, err)
	return store, client
}

// faultClient fails the operations whose hook returns an error.
type faultClient struct {
	cache.Client

	mu        sync.Mutex
	getErr    func(key string) error
	setErr    func(key string) error
	deleteErr func(key string) error
	// lostReply fails a delete after it has been applied.
	lostReply func(key string) error
	existsErr func(key string) error
	lockErr   func(name string) error
	released  []string
}

func (f *faultClient) hook(fn func(string) error, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(key)
}

func (f *faultClient) Get(ctx context.Context, key string) ([]byte, error) {
	if err := f.hook(f.getErr, key); err != nil {
		return nil, err
	}
	return f.Client.Get(ctx, key)
}

func (f *faultClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := f.hook(f.setErr, key); err != nil {
		return err
	}
	return f.Client.Set(ctx, key, value, ttl)
}

func (f *faultClient) Delete(ctx context.Context, key string) (int64, error) {
	if err := f.hook(f.deleteErr, key); err != nil {
		return 0, err
	}
	n, err := f.Client.Delete(ctx, key)
	if err != nil {
		return n, err
	}
	if err := f.hook(f.lostReply, key); err != nil {
		return 0, err
	}
	return n, nil
}

func (f *faultClient) Exists(ctx context.Context, key string) (bool, error) {
	if err := f.hook(f.existsErr, key); err != nil {
		return false, err
	}
	return f.Client.Exists(ctx, key)
}

func (f *faultClient) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if err := f.hook(f.lockErr, name); err != nil {
		return false, err
	}
	return f.Client.AcquireLock(ctx, name, ttl)
}

func (f *faultClient) ReleaseLock(ctx context.Context, name string) error {
	f.mu.Lock()
	f.released = append(f.released, name)
	f.mu.Unlock()
	return f.Client.ReleaseLock(ctx, name)
}

func (f *faultClient) releasedLocks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.released...)
}

// storeRecord writes values under the key for id.
func storeRecord(t *testing.T, store *Store, id string, values map[string]any) {
	t.Helper()
	data, err := Encode(values)
	require.NoError(t, err)
	require.NoError(t, store.client.Set(context.Background(), store.key(id), data, time.Hour))
}

// loadRecord reads the record stored for id, or nil if there is none.
func loadRecord(t *testing.T, store *Store, id string) map[string]any {
	t.Helper()
	data, err := store.client.Get(context.Background(), store.key(id))
	if errors.Is(err, cache.ErrNotFound) {
		return nil
	}
	require.NoError(t, err)
	values, err := Decode(data)
	require.NoError(t, err)
	return values
}

// requestWithSession returns a request carrying the signed cookie for id.
func requestWithSession(store *Store, id string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: store.opts.CookieName, Value: store.cookieValue(id)})
	return req
}

// responseCookie returns the last Set-Cookie for the session cookie, or nil.
func responseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	var found *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			found = c
		}
	}
	return found
}

// sessionKeys lists the stored session records, lock keys excluded.
func sessionKeys(mr *miniredis.Miniredis, prefix string) []string {
	var keys []string
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}
