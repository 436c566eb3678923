package cache

import (
	"context"
	"path"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryConfig holds in-process cache configuration
type MemoryConfig struct {
	// CleanupInterval for removing expired entries
	CleanupInterval time.Duration
}

// DefaultMemoryConfig returns a default memory cache configuration
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{
		CleanupInterval: 5 * time.Minute,
	}
}

// MemoryClient implements Client in process memory. State is not shared
// between processes, so it only suits development and single-instance tests.
type MemoryClient struct {
	mu           sync.RWMutex
	entries      map[string]*memoryEntry
	closed       bool
	cleanupTimer *time.Timer
	now          func() time.Time
	logger       *zap.Logger
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

var _ Client = (*MemoryClient)(nil)

// NewMemoryClient creates a new in-process cache client
func NewMemoryClient(config *MemoryConfig, logger *zap.Logger) *MemoryClient {
	if config == nil {
		config = DefaultMemoryConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &MemoryClient{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
		logger:  logger,
	}

	if config.CleanupInterval > 0 {
		c.startCleanup(config.CleanupInterval)
	}

	return c
}

// startCleanup starts the background cleanup routine
func (c *MemoryClient) startCleanup(interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.cleanupTimer = time.AfterFunc(interval, func() {
		c.cleanup()
		c.startCleanup(interval) // Reschedule
	})
}

// cleanup removes expired entries
func (c *MemoryClient) cleanup() {
	now := c.now()
	removed := 0

	c.mu.Lock()
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Debug("Cleaned up expired cache entries", zap.Int("count", removed))
	}
}

// lookup returns the live entry at key; mu must be held for writing
func (c *MemoryClient) lookup(key string) (*memoryEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	return e, true
}

func (c *MemoryClient) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

// Get returns the value at key
func (c *MemoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, wrapError("get", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, wrapError("get", ErrClosed)
	}
	e, ok := c.lookup(key)
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores value at key
func (c *MemoryClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return wrapError("set", err)
	}
	if err := validateTTL(ttl); err != nil {
		return wrapError("set", err)
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return wrapError("set", ErrClosed)
	}
	c.entries[key] = &memoryEntry{value: stored, expiresAt: c.expiry(ttl)}
	return nil
}

// Delete removes key
func (c *MemoryClient) Delete(ctx context.Context, key string) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, wrapError("delete", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, wrapError("delete", ErrClosed)
	}
	if _, ok := c.lookup(key); !ok {
		return 0, nil
	}
	delete(c.entries, key)
	return 1, nil
}

// Exists checks whether key is present
func (c *MemoryClient) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, wrapError("exists", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, wrapError("exists", ErrClosed)
	}
	_, ok := c.lookup(key)
	return ok, nil
}

// Increment adds one to the counter at key
func (c *MemoryClient) Increment(ctx context.Context, key string) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, wrapError("increment", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, wrapError("increment", ErrClosed)
	}

	var n int64
	e, ok := c.lookup(key)
	if ok {
		v, err := strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			return 0, wrapError("increment", ErrInvalidArgument)
		}
		n = v
	} else {
		e = &memoryEntry{}
		c.entries[key] = e
	}

	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// Expire sets the ttl of key
func (c *MemoryClient) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, wrapError("expire", err)
	}
	if ttl <= 0 {
		return false, wrapError("expire", ErrInvalidArgument)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, wrapError("expire", ErrClosed)
	}
	e, ok := c.lookup(key)
	if !ok {
		return false, nil
	}
	e.expiresAt = c.expiry(ttl)
	return true, nil
}

// AcquireLock creates lock:<name> if it is absent
func (c *MemoryClient) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if err := validateKey(name); err != nil {
		return false, wrapError("acquire_lock", err)
	}
	if ttl <= 0 {
		return false, wrapError("acquire_lock", ErrInvalidArgument)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, wrapError("acquire_lock", ErrClosed)
	}
	key := lockKey(name)
	if _, held := c.lookup(key); held {
		return false, nil
	}
	c.entries[key] = &memoryEntry{value: []byte("1"), expiresAt: c.expiry(ttl)}
	return true, nil
}

// ReleaseLock deletes lock:<name>
func (c *MemoryClient) ReleaseLock(ctx context.Context, name string) error {
	if err := validateKey(name); err != nil {
		return wrapError("release_lock", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return wrapError("release_lock", ErrClosed)
	}
	delete(c.entries, lockKey(name))
	return nil
}

// Scan calls fn for each live key matching the glob pattern. fn runs without
// the lock held, so it may call back into the client.
func (c *MemoryClient) Scan(ctx context.Context, match string, fn func(key string) error) error {
	if _, err := path.Match(match, ""); err != nil {
		return wrapError("scan", ErrInvalidArgument)
	}

	now := c.now()
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return wrapError("scan", ErrClosed)
	}
	keys := make([]string, 0, len(c.entries))
	for key, e := range c.entries {
		if e.expired(now) {
			continue
		}
		if ok, _ := path.Match(match, key); ok {
			keys = append(keys, key)
		}
	}
	c.mu.RUnlock()

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return wrapError("scan", err)
		}
		if err := fn(key); err != nil {
			return err
		}
	}
	return nil
}

// Ping always succeeds until Close
func (c *MemoryClient) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return wrapError("ping", ErrClosed)
	}
	return nil
}

// Close stops the cleanup routine and drops all entries
func (c *MemoryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.cleanupTimer != nil {
		c.cleanupTimer.Stop()
	}
	c.entries = make(map[string]*memoryEntry)

	c.logger.Debug("Memory cache client closed")
	return nil
}
