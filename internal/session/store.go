// Package session maps the session cookie of a request to a record held in
// the shared cache. It owns the identifier, its signature, the cache key built
// from it, and the cookie that carries it.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sh03m2a5h/edusync-session-go/internal/cache"
	"github.com/sh03m2a5h/edusync-session-go/internal/config"
	"github.com/sh03m2a5h/edusync-session-go/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// DefaultLifetime is used when no lifetime is configured.
	DefaultLifetime = 24 * time.Hour
	// MinExpiry and MaxExpiry bound every TTL and cookie expiry.
	MinExpiry = 5 * time.Minute
	MaxExpiry = 30 * 24 * time.Hour

	DefaultKeyPrefix  = "session:"
	DefaultCookieName = "session"
)

const tracerName = "github.com/sh03m2a5h/edusync-session-go/internal/session"

// Options configures a Store.
type Options struct {
	// Secrets sign and verify cookies. The first one signs.
	Secrets []string
	// UseSigner puts SID.signature in the cookie instead of the bare SID.
	UseSigner bool
	KeyPrefix string
	// Lifetime is clamped to [MinExpiry, MaxExpiry]; zero means DefaultLifetime.
	Lifetime time.Duration
	// Permanent is the default for new sessions.
	Permanent bool
	// LockTTL bounds the regeneration lock.
	LockTTL time.Duration
	// MaxLoginAge is the age past which a sign-in is no longer honoured. Zero disables the check.
	MaxLoginAge time.Duration

	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieSameSite http.SameSite
}

// DefaultOptions returns options matching the configuration defaults.
func DefaultOptions() Options {
	return Options{
		UseSigner:      true,
		KeyPrefix:      DefaultKeyPrefix,
		Lifetime:       DefaultLifetime,
		Permanent:      true,
		LockTTL:        cache.DefaultLockTTL,
		MaxLoginAge:    DefaultLifetime,
		CookieName:     DefaultCookieName,
		CookiePath:     "/",
		CookieSameSite: http.SameSiteLaxMode,
	}
}

// OptionsFromConfig converts the session section of the configuration.
// serverName is the public host name, used for the cookie domain when none is configured.
func OptionsFromConfig(cfg *config.SessionConfig, serverName string) Options {
	return Options{
		Secrets:        cfg.Secrets(),
		UseSigner:      cfg.UseSigner,
		KeyPrefix:      cfg.KeyPrefix,
		Lifetime:       cfg.Lifetime,
		Permanent:      cfg.Permanent,
		LockTTL:        cfg.LockTTL,
		MaxLoginAge:    cfg.MaxLoginAge,
		CookieName:     cfg.CookieName,
		CookieDomain:   cookieDomain(cfg.CookieDomain, serverName),
		CookiePath:     cfg.CookiePath,
		CookieSecure:   cfg.CookieSecure,
		CookieSameSite: parseSameSite(cfg.CookieSameSite),
	}
}

func cookieDomain(configured, serverName string) string {
	if configured != "" {
		return configured
	}
	if serverName == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(serverName); err == nil {
		return host
	}
	return serverName
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(value) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// ClampExpiry turns a configured lifetime into the TTL used for records and cookies.
func ClampExpiry(lifetime time.Duration) time.Duration {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return min(max(lifetime, MinExpiry), MaxExpiry)
}

// Store opens, saves and deletes sessions for request/response pairs.
type Store struct {
	client cache.Client
	opts   Options
	signer *Signer
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewStore creates a store over client. A signing secret is always required,
// even when cookies carry the bare SID.
func NewStore(client cache.Client, opts Options, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	signer, err := NewSigner(opts.Secrets)
	if err != nil {
		return nil, fmt.Errorf("failed to create session signer: %w", err)
	}

	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.CookiePath == "" {
		opts.CookiePath = "/"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = cache.DefaultLockTTL
	}
	if opts.CookieSameSite == 0 {
		opts.CookieSameSite = http.SameSiteLaxMode
	}
	if opts.Lifetime > 0 && ClampExpiry(opts.Lifetime) != opts.Lifetime {
		logger.Warn("Session lifetime out of range, clamping",
			zap.Duration("configured", opts.Lifetime),
			zap.Duration("effective", ClampExpiry(opts.Lifetime)))
	}

	return &Store{
		client: client,
		opts:   opts,
		signer: signer,
		logger: logger,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}, nil
}

// Options returns the effective options.
func (s *Store) Options() Options {
	return s.opts
}

// Expiry is the TTL applied to stored records and permanent cookies.
func (s *Store) Expiry() time.Duration {
	return ClampExpiry(s.opts.Lifetime)
}

func (s *Store) key(id string) string {
	return s.opts.KeyPrefix + id
}

// Open returns the session for r. It never fails: a missing, forged or
// unreadable cookie and an unreachable cache all yield an empty session under
// a new ID.
func (s *Store) Open(ctx context.Context, r *http.Request) *Session {
	ctx, span := s.tracer.Start(ctx, "session.Open")
	defer span.End()

	result, sess := s.open(ctx, r)
	span.SetAttributes(attribute.String("session.open.result", result))
	metrics.SessionOpensTotal.WithLabelValues(result).Inc()
	return sess
}

func (s *Store) open(ctx context.Context, r *http.Request) (string, *Session) {
	id, result := s.readCookie(r)
	if id == "" {
		return result, newSession(NewID(), s.opts.Permanent)
	}

	data, err := s.client.Get(ctx, s.key(id))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return "miss", newSession(NewID(), s.opts.Permanent)
		}
		s.logger.Warn("Failed to load session, starting a new one", zap.Error(err))
		return "error", newSession(NewID(), s.opts.Permanent)
	}

	values, err := Decode(data)
	if err != nil {
		s.logger.Warn("Discarding unreadable session record", zap.Error(err))
		return "corrupt", newSession(NewID(), s.opts.Permanent)
	}

	sess := loadedSession(id, values, s.opts.Permanent)
	if needsRegeneration(values) {
		s.regenerate(ctx, sess)
	}
	return "loaded", sess
}

// readCookie returns the unsigned SID carried by r, or "" and the reason there is none.
func (s *Store) readCookie(r *http.Request) (string, string) {
	cookie, err := r.Cookie(s.opts.CookieName)
	if err != nil || cookie.Value == "" {
		return "", "new"
	}

	id := cookie.Value
	if s.opts.UseSigner {
		id, err = s.signer.Unsign(cookie.Value)
		if err != nil {
			s.logger.Debug("Rejected session cookie with invalid signature")
			return "", "invalid"
		}
	}
	if !ValidID(id) {
		s.logger.Debug("Rejected malformed session cookie")
		return "", "invalid"
	}
	return id, ""
}

// Save commits sess at the end of a request. Only a failed cache write or
// delete is reported; the session in memory stays usable either way.
func (s *Store) Save(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	ctx, span := s.tracer.Start(ctx, "session.Save")
	defer span.End()

	action, err := s.save(ctx, w, sess)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "session save failed")
	}
	span.SetAttributes(attribute.String("session.save.action", action))
	metrics.SessionSavesTotal.WithLabelValues(action, status).Inc()
	return err
}

func (s *Store) save(ctx context.Context, w http.ResponseWriter, sess *Session) (string, error) {
	if sess.Invalidated() {
		return "delete", s.delete(ctx, w, sess)
	}

	if !sess.Permanent() && !s.opts.Permanent {
		if sess.IsNew() && !sess.Modified() {
			return "noop", nil
		}
		return "delete", s.delete(ctx, w, sess)
	}

	if sess.IsEmpty() {
		if !sess.Modified() {
			return "noop", nil
		}
		return "delete", s.delete(ctx, w, sess)
	}

	expiry := s.Expiry()

	if !sess.Modified() {
		if sess.needsCookie() {
			s.setCookie(w, sess, expiry)
			sess.markSaved()
			return "cookie", nil
		}
		return "noop", nil
	}

	data, err := Encode(sess.record())
	if err != nil {
		return "write", fmt.Errorf("%w: %w", ErrSaveSession, err)
	}
	if err := s.client.Set(ctx, s.key(sess.ID()), data, expiry); err != nil {
		return "write", fmt.Errorf("%w: %w", ErrSaveSession, err)
	}

	s.setCookie(w, sess, expiry)
	sess.markSaved()
	return "write", nil
}

// Delete removes the stored record and the cookie regardless of what changed,
// then leaves sess empty under a new ID.
func (s *Store) Delete(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	ctx, span := s.tracer.Start(ctx, "session.Delete")
	defer span.End()

	err := s.delete(ctx, w, sess)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "session delete failed")
	}
	metrics.SessionSavesTotal.WithLabelValues("delete", status).Inc()
	return err
}

func (s *Store) delete(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	_, err := s.client.Delete(ctx, s.key(sess.ID()))
	s.clearCookie(w)
	sess.reset(NewID())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteSession, err)
	}
	return nil
}

func (s *Store) cookieValue(id string) string {
	if s.opts.UseSigner {
		return s.signer.Sign(id)
	}
	return id
}

func (s *Store) setCookie(w http.ResponseWriter, sess *Session, expiry time.Duration) {
	cookie := &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    s.cookieValue(sess.ID()),
		Path:     s.opts.CookiePath,
		Domain:   s.opts.CookieDomain,
		Secure:   s.opts.CookieSecure,
		HttpOnly: true,
		SameSite: s.opts.CookieSameSite,
	}
	if sess.Permanent() {
		cookie.MaxAge = int(expiry / time.Second)
		cookie.Expires = s.now().Add(expiry).UTC()
	}
	http.SetCookie(w, cookie)
}

func (s *Store) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    "",
		Path:     s.opts.CookiePath,
		Domain:   s.opts.CookieDomain,
		Secure:   s.opts.CookieSecure,
		HttpOnly: true,
		SameSite: s.opts.CookieSameSite,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}
