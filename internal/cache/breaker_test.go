package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func newTestBreaker(t *testing.T, threshold int) (*CircuitBreaker, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(threshold, time.Minute, zaptest.NewLogger(t))
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_Allow(t *testing.T) {
	cb, now := newTestBreaker(t, 3)

	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())

	// Third failure opens the circuit
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	*now = now.Add(30 * time.Second)
	assert.False(t, cb.Allow())

	*now = now.Add(31 * time.Second)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(t, 3)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	assert.Equal(t, 0, cb.Failures())

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	t.Run("success closes", func(t *testing.T) {
		cb, now := newTestBreaker(t, 1)
		cb.RecordFailure()
		*now = now.Add(2 * time.Minute)
		assert.True(t, cb.Allow())

		cb.RecordSuccess()
		assert.Equal(t, StateClosed, cb.State())
		assert.Equal(t, 0, cb.Failures())
	})

	t.Run("failure re-opens", func(t *testing.T) {
		cb, now := newTestBreaker(t, 1)
		cb.RecordFailure()
		*now = now.Add(2 * time.Minute)
		assert.True(t, cb.Allow())

		cb.RecordFailure()
		assert.Equal(t, StateOpen, cb.State())
		assert.False(t, cb.Allow())
	})
}

func TestCircuitBreaker_Disabled(t *testing.T) {
	cb, _ := newTestBreaker(t, 0)
	for i := 0; i < 10; i++ {
		cb.RecordFailure()
	}
	assert.True(t, cb.Allow())
	assert.Equal(t, StateClosed, cb.State())

	var nilBreaker *CircuitBreaker
	assert.True(t, nilBreaker.Allow())
	nilBreaker.RecordFailure()
	nilBreaker.RecordSuccess()
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(t, 1)
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
	assert.True(t, cb.Allow())
}

func TestBreakerStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(99).String())
}
