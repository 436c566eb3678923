// Package cache provides the shared key-value client used for session state.
//
// Callers see a plain Client interface. For Redis, retries and the circuit
// breaker sit in a go-redis hook beneath it, so no individual operation
// carries its own retry logic.
package cache

import (
	"context"
	"time"
)

// LockPrefix is prepended to every lock name to form its cache key.
const LockPrefix = "lock:"

// DefaultLockTTL bounds how long an unreleased lock survives its holder.
const DefaultLockTTL = 10 * time.Second

// Client defines the operations the session layer needs from the cache.
//
// Values are opaque bytes; the client does not interpret them and does not
// build keys beyond the lock namespace.
type Client interface {
	// Get returns the value stored at key, or ErrNotFound if it is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key. A ttl of 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key and reports how many keys were removed.
	Delete(ctx context.Context, key string) (int64, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Increment atomically adds one to the integer at key, creating it at 0 first.
	Increment(ctx context.Context, key string) (int64, error)

	// Expire sets a new ttl on key. It reports false if the key is absent.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// AcquireLock creates lock:<name> only if it does not exist, in a single
	// atomic request. It reports whether this caller now holds the lock.
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// ReleaseLock deletes lock:<name> unconditionally.
	ReleaseLock(ctx context.Context, name string) error

	// Scan calls fn for every key matching the glob pattern. Iteration stops
	// at the first error returned by fn.
	Scan(ctx context.Context, match string, fn func(key string) error) error

	// Ping checks backend reachability.
	Ping(ctx context.Context) error

	// Close releases connections held by the client.
	Close() error
}

func lockKey(name string) string {
	return LockPrefix + name
}

func validateKey(key string) error {
	if key == "" {
		return ErrInvalidArgument
	}
	return nil
}

func validateTTL(ttl time.Duration) error {
	if ttl < 0 {
		return ErrInvalidArgument
	}
	return nil
}
