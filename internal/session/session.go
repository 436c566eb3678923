package session

import (
	"encoding/json"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"
)

// Field names the session layer itself reads or writes.
const (
	// KeyFresh is true right after authentication until the ID has been rotated.
	KeyFresh = "_fresh"
	// KeyUserID identifies the signed-in user.
	KeyUserID = "_user_id"
	// KeyLastUserID is the identity the current session ID was issued for.
	KeyLastUserID = "_last_user_id"
	// KeyPermanent persists the permanence flag. It never counts as session data.
	KeyPermanent = "_permanent"
	// KeyLoginTime is the RFC 3339 time of the last sign-in.
	KeyLoginTime = "login_time"
)

// Session is the per-request view of a session record.
// It is safe for use by multiple goroutines serving the same request.
type Session struct {
	mu          sync.RWMutex
	id          string
	values      map[string]any
	permanent   bool
	modified    bool
	isNew       bool
	invalidated bool
	rotated     bool
}

func newSession(id string, permanent bool) *Session {
	return &Session{
		id:        id,
		values:    map[string]any{},
		permanent: permanent,
		isNew:     true,
	}
}

// loadedSession builds a session from a stored record. The persisted
// permanence flag is lifted out of the values.
func loadedSession(id string, values map[string]any, defaultPermanent bool) *Session {
	permanent := defaultPermanent
	if p, ok := values[KeyPermanent].(bool); ok {
		permanent = p
	}
	delete(values, KeyPermanent)

	return &Session{
		id:        id,
		values:    values,
		permanent: permanent,
	}
}

// ID returns the session identifier. It must never be logged.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// GetString returns the string stored under key, or "".
func (s *Session) GetString(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// GetInt returns the integer stored under key. Values read back from the
// cache are json.Number; both those and native integers are accepted.
func (s *Session) GetInt(key string) (int64, bool) {
	v, ok := s.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// GetBool returns the bool stored under key, or false.
func (s *Session) GetBool(key string) bool {
	v, _ := s.Get(key)
	b, _ := v.(bool)
	return b
}

// Set stores value under key and marks the session modified.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == KeyPermanent {
		if b, ok := value.(bool); ok {
			s.permanent = b
			s.modified = true
		}
		return
	}
	s.values[key] = value
	s.modified = true
}

// Delete removes key. The session is marked modified only if key was present.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.modified = true
	}
}

// Clear empties the session and marks it modified, so the next save
// deletes the stored record and its cookie.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = map[string]any{}
	s.modified = true
}

// Len returns the number of fields.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// IsEmpty reports whether the session holds no data.
func (s *Session) IsEmpty() bool {
	return s.Len() == 0
}

// Keys returns the field names in sorted order.
func (s *Session) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.values))
}

// Permanent reports whether the cookie outlives the browser session.
func (s *Session) Permanent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.permanent
}

// SetPermanent changes permanence and marks the session modified.
func (s *Session) SetPermanent(permanent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permanent != permanent {
		s.permanent = permanent
		s.modified = true
	}
}

// Modified reports whether the session changed since it was opened or last saved.
func (s *Session) Modified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modified
}

// IsNew reports whether the session had no stored record when opened.
func (s *Session) IsNew() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isNew
}

// Invalidate marks the session for deletion at the end of the request.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = true
}

// Invalidated reports whether Invalidate was called.
func (s *Session) Invalidated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.invalidated
}

// LoginTime returns the parsed login_time field.
func (s *Session) LoginTime() (time.Time, bool) {
	return parseLoginTime(s.GetString(KeyLoginTime))
}

// record returns a copy of the values in their stored form.
func (s *Session) record() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := maps.Clone(s.values)
	if out == nil {
		out = map[string]any{}
	}
	if s.permanent {
		out[KeyPermanent] = true
	}
	return out
}

// needsCookie reports whether the ID changed without the data changing.
func (s *Session) needsCookie() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rotated
}

// rotate moves the session to a new ID after its record was copied there.
func (s *Session) rotate(id string, lastUserID any, consumedFresh bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.values[KeyLastUserID] = lastUserID
	if consumedFresh {
		s.values[KeyFresh] = false
	}
	s.rotated = true
}

// markSaved records that the stored record and cookie match memory.
func (s *Session) markSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modified = false
	s.isNew = false
	s.rotated = false
}

// reset empties the session after deletion and gives it a new ID, so
// fields set later in the same request do not land under the old one.
func (s *Session) reset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.values = map[string]any{}
	s.modified = false
	s.invalidated = false
	s.rotated = false
	s.isNew = true
}

// loginTimeLayouts accepts RFC 3339 and the naive ISO format older records carry, read as UTC.
var loginTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

func parseLoginTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range loginTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// LoginExpired reports whether the record's login_time is older than maxAge.
// Records without a readable login_time never expire this way.
func LoginExpired(values map[string]any, now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	raw, _ := values[KeyLoginTime].(string)
	t, ok := parseLoginTime(raw)
	if !ok {
		return false
	}
	return now.Sub(t) > maxAge
}
