package cache

import (
	"context"
	"errors"
	"time"

	"github.com/sh03m2a5h/edusync-session-go/internal/metrics"
)

// MetricsClient wraps a Client and records metrics
type MetricsClient struct {
	client  Client
	backend string
}

var _ Client = (*MetricsClient)(nil)

// NewMetricsClient creates a new metrics-enabled client wrapper
func NewMetricsClient(client Client, backend string) *MetricsClient {
	return &MetricsClient{
		client:  client,
		backend: backend,
	}
}

// Unwrap returns the wrapped client
func (m *MetricsClient) Unwrap() Client {
	return m.client
}

func (m *MetricsClient) observe(op string, start time.Time, err error) {
	status := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "miss"
	case err != nil:
		status = "error"
	}

	metrics.CacheOperationsTotal.WithLabelValues(op, m.backend, status).Inc()
	metrics.CacheOperationDuration.WithLabelValues(op, m.backend).Observe(time.Since(start).Seconds())
}

// Get retrieves a value and records metrics
func (m *MetricsClient) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	val, err := m.client.Get(ctx, key)
	m.observe("get", start, err)
	return val, err
}

// Set stores a value and records metrics
func (m *MetricsClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := m.client.Set(ctx, key, value, ttl)
	m.observe("set", start, err)
	return err
}

// Delete removes a key and records metrics
func (m *MetricsClient) Delete(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	n, err := m.client.Delete(ctx, key)
	m.observe("delete", start, err)
	return n, err
}

// Exists checks a key and records metrics
func (m *MetricsClient) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := m.client.Exists(ctx, key)
	m.observe("exists", start, err)
	return ok, err
}

// Increment bumps a counter and records metrics
func (m *MetricsClient) Increment(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	n, err := m.client.Increment(ctx, key)
	m.observe("increment", start, err)
	return n, err
}

// Expire sets a ttl and records metrics
func (m *MetricsClient) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := m.client.Expire(ctx, key, ttl)
	m.observe("expire", start, err)
	return ok, err
}

// AcquireLock takes a lock and records metrics
func (m *MetricsClient) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	start := time.Now()
	ok, err := m.client.AcquireLock(ctx, name, ttl)
	m.observe("acquire_lock", start, err)
	return ok, err
}

// ReleaseLock drops a lock and records metrics
func (m *MetricsClient) ReleaseLock(ctx context.Context, name string) error {
	start := time.Now()
	err := m.client.ReleaseLock(ctx, name)
	m.observe("release_lock", start, err)
	return err
}

// Scan walks keys and records metrics for the whole walk
func (m *MetricsClient) Scan(ctx context.Context, match string, fn func(key string) error) error {
	start := time.Now()
	err := m.client.Scan(ctx, match, fn)
	m.observe("scan", start, err)
	return err
}

// Ping checks reachability
func (m *MetricsClient) Ping(ctx context.Context) error {
	return m.client.Ping(ctx)
}

// Close closes the wrapped client
func (m *MetricsClient) Close() error {
	return m.client.Close()
}
