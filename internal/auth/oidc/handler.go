package oidc

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sh03m2a5h/edusync-session-go/internal/auth"
	"github.com/sh03m2a5h/edusync-session-go/internal/bridge"
	"github.com/sh03m2a5h/edusync-session-go/internal/config"
	"github.com/sh03m2a5h/edusync-session-go/internal/metrics"
	"github.com/sh03m2a5h/edusync-session-go/internal/session"
	"go.uber.org/zap"
)

const providerLabel = "oidc"

// Session fields holding the pending authorization request
const (
	keyState        = "oidc_state"
	keyCodeVerifier = "oidc_code_verifier"
	keyRedirect     = "oidc_redirect_uri"
)

var errNoSession = errors.New("session middleware is not installed")

// Handler runs the authorization code flow and records the result in the
// request's session
type Handler struct {
	provider Provider
	store    *session.Store
	config   *config.OIDCConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler discovers the provider and creates a new OIDC handler
func NewHandler(ctx context.Context, cfg *config.OIDCConfig, store *session.Store, logger *zap.Logger) (*Handler, error) {
	if cfg.DiscoveryURL == "" {
		return nil, fmt.Errorf("OIDC discovery URL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("OIDC client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("OIDC client secret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("OIDC redirect URL is required")
	}

	client, err := NewClient(ctx, cfg.DiscoveryURL, cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL, cfg.Scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC client: %w", err)
	}

	return NewHandlerWithProvider(client, cfg, store, logger), nil
}

// NewHandlerWithProvider creates a handler around an existing provider
func NewHandlerWithProvider(provider Provider, cfg *config.OIDCConfig, store *session.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		provider: provider,
		store:    store,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Register mounts the login, callback and logout routes
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/login", bridge.Handle(h.logger, h.Authorize))
	r.GET("/callback", bridge.Handle(h.logger, h.Callback))
	r.POST("/logout", bridge.Handle(h.logger, h.Logout))
}

// Authorize starts the flow. The state, PKCE verifier and the page to
// return to are kept in the session until the callback.
func (h *Handler) Authorize(c *gin.Context) error {
	sess := session.FromGin(c)
	if sess == nil {
		return errNoSession
	}

	state, err := randomString(32)
	if err != nil {
		return fmt.Errorf("failed to generate state: %w", err)
	}

	authURL, codeVerifier, err := h.provider.AuthCodeURL(state, h.config.UsePKCE)
	if err != nil {
		return fmt.Errorf("failed to build authorization URL: %w", err)
	}

	sess.Set(keyState, state)
	if codeVerifier != "" {
		sess.Set(keyCodeVerifier, codeVerifier)
	} else {
		sess.Delete(keyCodeVerifier)
	}
	sess.Set(keyRedirect, auth.SafeRedirect(c.Query("redirect_uri")))

	metrics.AuthRequestsTotal.WithLabelValues(providerLabel, "redirect").Inc()
	c.Redirect(http.StatusFound, authURL)
	return nil
}

// Callback completes the flow and signs the user in
func (h *Handler) Callback(c *gin.Context) error {
	start := time.Now()
	defer func() {
		metrics.AuthCallbackDuration.Observe(time.Since(start).Seconds())
	}()

	sess := session.FromGin(c)
	if sess == nil {
		return errNoSession
	}

	if errorParam := c.Query("error"); errorParam != "" {
		metrics.AuthRequestsTotal.WithLabelValues(providerLabel, "denied").Inc()
		return bridge.NewError(http.StatusBadRequest, "Authorization was not granted",
			fmt.Errorf("provider returned %s: %s", errorParam, c.Query("error_description")))
	}

	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		metrics.AuthRequestsTotal.WithLabelValues(providerLabel, "invalid_request").Inc()
		return bridge.NewError(http.StatusBadRequest, "Missing required parameters", nil)
	}

	// One attempt per authorization request
	expected := sess.GetString(keyState)
	codeVerifier := sess.GetString(keyCodeVerifier)
	redirect := sess.GetString(keyRedirect)
	sess.Delete(keyState)
	sess.Delete(keyCodeVerifier)
	sess.Delete(keyRedirect)

	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		metrics.AuthRequestsTotal.WithLabelValues(providerLabel, "invalid_state").Inc()
		return bridge.NewError(http.StatusBadRequest, "Invalid or expired state", nil)
	}

	tokens, err := h.provider.Exchange(c.Request.Context(), code, codeVerifier)
	if err != nil {
		metrics.AuthRequestsTotal.WithLabelValues(providerLabel, "error").Inc()
		return bridge.NewError(http.StatusBadGateway, "Failed to exchange authorization code", err)
	}

	identity := h.identity(c.Request.Context(), tokens)
	if identity.UserID == "" {
		metrics.AuthRequestsTotal.WithLabelValues(providerLabel, "error").Inc()
		return bridge.NewError(http.StatusBadGateway, "Identity provider returned no subject", nil)
	}

	auth.SignIn(sess, identity, h.now())
	metrics.AuthRequestsTotal.WithLabelValues(providerLabel, "success").Inc()

	h.logger.Info("User authenticated",
		zap.String("user_id", identity.UserID),
		zap.String("role", identity.Role),
	)

	c.Redirect(http.StatusFound, auth.SafeRedirect(redirect))
	return nil
}

// Logout signs the user out and sends them to the post-logout page
func (h *Handler) Logout(c *gin.Context) error {
	sess := session.FromGin(c)
	if sess == nil {
		return errNoSession
	}

	if user, ok := auth.CurrentUser(sess); ok {
		h.logger.Info("User logged out", zap.String("user_id", user.UserID))
	}

	// The cookie is cleared even if the stored record could not be removed
	if err := auth.SignOut(c.Request.Context(), h.store, c.Writer, sess); err != nil {
		h.logger.Warn("Failed to delete session on logout", zap.Error(err))
	}
	metrics.AuthRequestsTotal.WithLabelValues(providerLabel, "logout").Inc()

	redirectURL := h.config.PostLogoutRedirectURL
	if redirectURL == "" {
		redirectURL = "/"
	}
	c.Redirect(http.StatusSeeOther, redirectURL)
	return nil
}

// identity reads the user from the ID token claims, falling back to the
// userinfo endpoint for a missing email
func (h *Handler) identity(ctx context.Context, tokens *TokenResponse) auth.Identity {
	id := auth.Identity{
		UserID: tokens.Subject,
		Email:  claimString(tokens.Claims, "email"),
		Name:   claimString(tokens.Claims, "name"),
	}
	if id.UserID == "" {
		id.UserID = claimString(tokens.Claims, "sub")
	}
	if h.config.RoleClaim != "" {
		id.Role = claimString(tokens.Claims, h.config.RoleClaim)
	}

	if id.Email == "" && tokens.AccessToken != "" {
		info, err := h.provider.UserInfo(ctx, tokens.AccessToken)
		if err != nil {
			h.logger.Warn("Failed to fetch user info", zap.Error(err))
			return id
		}
		id.Email = claimString(info, "email")
		if id.Name == "" {
			id.Name = claimString(info, "name")
		}
	}
	return id
}

// claimString returns a string claim, or the first element of a list claim
func claimString(claims map[string]any, name string) string {
	switch v := claims[name].(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
