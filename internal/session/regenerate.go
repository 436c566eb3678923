package session

import (
	"context"
	"reflect"

	"github.com/sh03m2a5h/edusync-session-go/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// regenerateLockPrefix names the lock guarding a record while it moves to a new ID.
const regenerateLockPrefix = "session_recreate:"

// needsRegeneration is true right after sign-in and whenever the signed-in
// user differs from the one the current ID was issued for.
func needsRegeneration(values map[string]any) bool {
	if fresh, _ := values[KeyFresh].(bool); fresh {
		return true
	}
	return !reflect.DeepEqual(values[KeyUserID], values[KeyLastUserID])
}

// regenerate copies the record of sess to a new ID and removes the old one
// under a lock on the old key. The session keeps its old ID unless the copy
// was written and the old record is gone or its fate is unknown. Contention is
// not an error: the next request tries again.
func (s *Store) regenerate(ctx context.Context, sess *Session) bool {
	ctx, span := s.tracer.Start(ctx, "session.Regenerate")
	defer span.End()

	result := s.tryRegenerate(ctx, sess)
	span.SetAttributes(attribute.String("session.regenerate.result", result))
	metrics.SessionRegenerationsTotal.WithLabelValues(result).Inc()
	return result == "ok"
}

func (s *Store) tryRegenerate(ctx context.Context, sess *Session) string {
	oldKey := s.key(sess.ID())
	lockName := regenerateLockPrefix + oldKey

	acquired, err := s.client.AcquireLock(ctx, lockName, s.opts.LockTTL)
	if err != nil {
		s.logger.Warn("Failed to acquire session regeneration lock", zap.Error(err))
		return "error"
	}
	if !acquired {
		s.logger.Debug("Session regeneration lock held elsewhere, deferring")
		return "contended"
	}
	defer func() {
		if err := s.client.ReleaseLock(context.WithoutCancel(ctx), lockName); err != nil {
			s.logger.Warn("Failed to release session regeneration lock", zap.Error(err))
		}
	}()

	record := sess.record()
	lastUserID := record[KeyUserID]
	record[KeyLastUserID] = lastUserID
	_, consumedFresh := record[KeyFresh]
	if consumedFresh {
		record[KeyFresh] = false
	}

	data, err := Encode(record)
	if err != nil {
		s.logger.Warn("Failed to encode session for regeneration", zap.Error(err))
		return "error"
	}

	newID := NewID()
	newKey := s.key(newID)

	if err := s.client.Set(ctx, newKey, data, s.Expiry()); err != nil {
		s.logger.Warn("Failed to write regenerated session, keeping current ID", zap.Error(err))
		return "error"
	}

	if _, err := s.client.Delete(ctx, oldKey); err != nil {
		return s.recoverFailedDelete(ctx, sess, oldKey, newKey, newID, lastUserID, consumedFresh, err)
	}

	sess.rotate(newID, lastUserID, consumedFresh)
	return "ok"
}

// recoverFailedDelete settles a rotation whose removal of the old record
// reported an error. The delete may still have been applied, so the new copy
// is only rolled back once the old record is known to be live. At least one
// copy always survives, and the session stays bound to one of them.
func (s *Store) recoverFailedDelete(ctx context.Context, sess *Session, oldKey, newKey, newID string, lastUserID any, consumedFresh bool, deleteErr error) string {
	ctx = context.WithoutCancel(ctx)

	oldLive, err := s.client.Exists(ctx, oldKey)
	switch {
	case err != nil:
		// Unknown outcome: keep both copies and follow the new one. The old
		// record, if it survived, expires with its TTL.
		s.logger.Warn("Failed to remove previous session, keeping both copies",
			zap.NamedError("delete_error", deleteErr), zap.Error(err))
		sess.rotate(newID, lastUserID, consumedFresh)
		return "partial"
	case !oldLive:
		s.logger.Debug("Previous session removed despite delete error", zap.Error(deleteErr))
		sess.rotate(newID, lastUserID, consumedFresh)
		return "ok"
	}

	s.logger.Warn("Failed to remove previous session, keeping current ID", zap.Error(deleteErr))
	if _, err := s.client.Delete(ctx, newKey); err != nil {
		s.logger.Warn("Failed to remove regenerated copy", zap.Error(err))
	}
	return "error"
}
