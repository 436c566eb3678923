package cache

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sh03m2a5h/edusync-session-go/internal/metrics"
	"go.uber.org/zap"
)

// RetryPolicy configures how transient failures are retried
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, the first one included
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; it doubles afterwards
	BaseDelay time.Duration
	// MaxDelay caps a single wait
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns three attempts with 100ms, 200ms waits
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// Retrier runs an operation under a RetryPolicy, retrying only errors that
// IsTransient classifies as such.
type Retrier struct {
	policy  RetryPolicy
	logger  *zap.Logger
	onRetry func(name string, attempt int, err error)
}

// NewRetrier creates a retrier. Zero fields of policy fall back to defaults.
func NewRetrier(policy RetryPolicy, logger *zap.Logger) *Retrier {
	def := DefaultRetryPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = def.BaseDelay
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = policy.BaseDelay << (policy.MaxAttempts - 1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{
		policy: policy,
		logger: logger,
	}
}

// Policy returns the effective policy
func (r *Retrier) Policy() RetryPolicy {
	return r.policy
}

// Do calls fn until it succeeds, returns a non-transient error, the attempts
// run out or ctx is done. The returned error is the last one fn produced.
func (r *Retrier) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := fn(ctx)
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, ErrCircuitOpen), !IsTransient(err), ctx.Err() != nil:
			return struct{}{}, backoff.Permanent(err)
		default:
			return struct{}{}, err
		}
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.logger.Debug("Retrying cache command",
				zap.String("command", name),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
			metrics.CacheRetriesTotal.WithLabelValues(name).Inc()
			if r.onRetry != nil {
				r.onRetry(name, attempt, err)
			}
		}),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	return err
}

func (r *Retrier) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.BaseDelay
	b.MaxInterval = r.policy.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return b
}
