package cache

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sh03m2a5h/edusync-session-go/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetricsClient(t *testing.T) {
	inner := NewMemoryClient(&MemoryConfig{}, zap.NewNop())
	client := NewMetricsClient(inner, "metrics_test")
	defer client.Close()

	ctx := context.Background()
	count := func(op, status string) float64 {
		return testutil.ToFloat64(metrics.CacheOperationsTotal.WithLabelValues(op, "metrics_test", status))
	}

	require.NoError(t, client.Set(ctx, "k", []byte("v"), time.Minute))
	assert.Equal(t, float64(1), count("set", "ok"))

	_, err := client.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, float64(1), count("get", "ok"))

	_, err = client.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, float64(1), count("get", "miss"))

	_, err = client.Get(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, float64(1), count("get", "error"))

	ok, err := client.AcquireLock(ctx, "l", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, client.ReleaseLock(ctx, "l"))
	assert.Equal(t, float64(1), count("acquire_lock", "ok"))
	assert.Equal(t, float64(1), count("release_lock", "ok"))

	assert.Same(t, inner, client.Unwrap())
}
