package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sh03m2a5h/edusync-session-go/internal/cache"
	"github.com/sh03m2a5h/edusync-session-go/internal/metrics"
	"go.uber.org/zap"
)

// SweepResult summarises one pass over the stored sessions.
type SweepResult struct {
	Scanned int
	Removed int
	Failed  int
}

// Sweep deletes every stored session whose sign-in is older than
// MaxLoginAge. Records that cannot be read are counted and skipped.
func (s *Store) Sweep(ctx context.Context) (SweepResult, error) {
	ctx, span := s.tracer.Start(ctx, "session.Sweep")
	defer span.End()

	var result SweepResult
	if s.opts.MaxLoginAge <= 0 {
		return result, nil
	}

	now := s.now()
	err := s.client.Scan(ctx, s.opts.KeyPrefix+"*", func(key string) error {
		result.Scanned++

		data, err := s.client.Get(ctx, key)
		if errors.Is(err, cache.ErrNotFound) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			result.Failed++
			return nil
		}

		values, err := Decode(data)
		if err != nil {
			result.Failed++
			return nil
		}
		if !LoginExpired(values, now, s.opts.MaxLoginAge) {
			return nil
		}

		if _, err := s.client.Delete(ctx, key); err != nil {
			result.Failed++
			return nil
		}
		result.Removed++
		return nil
	})

	metrics.SessionsSwept.Add(float64(result.Removed))
	metrics.SessionsActive.Set(float64(result.Scanned - result.Removed))

	s.logger.Info("Session sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("removed", result.Removed),
		zap.Int("failed", result.Failed),
	)

	if err != nil {
		return result, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	return result, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("Session sweep failed", zap.Error(err))
			}
		}
	}
}

// LoginExpired reports whether the signed-in user of sess must sign in again.
func (s *Store) LoginExpired(sess *Session) bool {
	if s.opts.MaxLoginAge <= 0 {
		return false
	}
	t, ok := sess.LoginTime()
	if !ok {
		return false
	}
	return s.now().Sub(t) > s.opts.MaxLoginAge
}
