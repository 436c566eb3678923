package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// resilienceHook applies the retry policy and the circuit breaker to every
// command the go-redis client processes.
type resilienceHook struct {
	retrier *Retrier
	breaker *CircuitBreaker
}

var _ redis.Hook = (*resilienceHook)(nil)

func newResilienceHook(retrier *Retrier, breaker *CircuitBreaker) *resilienceHook {
	return &resilienceHook{
		retrier: retrier,
		breaker: breaker,
	}
}

func (h *resilienceHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *resilienceHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := h.run(ctx, cmd.Name(), func(ctx context.Context) error {
			cmd.SetErr(nil)
			return next(ctx, cmd)
		})
		if err != nil && cmd.Err() == nil {
			cmd.SetErr(err)
		}
		return err
	}
}

func (h *resilienceHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := h.run(ctx, "pipeline", func(ctx context.Context) error {
			for _, cmd := range cmds {
				cmd.SetErr(nil)
			}
			return next(ctx, cmds)
		})
		if err != nil {
			for _, cmd := range cmds {
				if cmd.Err() == nil {
					cmd.SetErr(err)
				}
			}
		}
		return err
	}
}

func (h *resilienceHook) run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if !h.breaker.Allow() {
		return ErrCircuitOpen
	}

	err := h.retrier.Do(ctx, name, fn)
	switch {
	case ctx.Err() != nil:
		// The caller gave up; that says nothing about the backend.
	case IsTransient(err):
		h.breaker.RecordFailure()
	default:
		h.breaker.RecordSuccess()
	}
	return err
}
