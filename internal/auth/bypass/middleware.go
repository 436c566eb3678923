package bypass

import (
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

const providerLabel = "bypass"

// Default development user values
const (
	DefaultUserID    = "bypass-user"
	DefaultUserEmail = "bypass@example.com"
	DefaultUserName  = "Bypass User"
)

// Identity returns the configured development user, filling in defaults
func Identity(cfg *config.BypassConfig) auth.Identity {
	id := auth.Identity{
		UserID: cfg.UserID,
		Email:  cfg.Email,
		Name:   cfg.Name,
		Role:   cfg.Role,
	}
	if id.UserID == "" {
		id.UserID = DefaultUserID
	}
	if id.Email == "" {
		id.Email = DefaultUserEmail
	}
	if id.Name == "" {
		id.Name = DefaultUserName
	}
	return id
}

// AuthMiddleware signs every visitor in as the development user. It must run
// after the session middleware. A session already held by that user is left
// alone so its ID is not rotated on every request.
func AuthMiddleware(cfg *config.BypassConfig, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	identity := Identity(cfg)

	return func(c *gin.Context) {
		sess := session.FromGin(c)
		if sess == nil {
			logger.Error("Bypass auth installed without session middleware")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
			return
		}

		if current, ok := auth.CurrentUser(sess); !ok || current.UserID != identity.UserID {
			auth.SignIn(sess, identity, time.Now())
			metrics.AuthRequestsTotal.WithLabelValues(providerLabel, "success").Inc()
			logger.Debug("Bypass auth mode - signed in development user",
				zap.String("user_id", identity.UserID),
			)
		}

		c.Next()
	}
}

// LogoutHandler clears the session. The next request signs the development
// user in again.
func LogoutHandler(store *session.Store, logger *zap.Logger) gin.HandlerFunc {
	return bridge.Handle(logger, func(c *gin.Context) error {
		sess := session.FromGin(c)
		if sess == nil {
			return bridge.NewError(http.StatusInternalServerError, "", nil)
		}
		if err := auth.SignOut(c.Request.Context(), store, c.Writer, sess); err != nil {
			logger.Warn("Failed to delete session on logout", zap.Error(err))
		}
		metrics.AuthRequestsTotal.WithLabelValues(providerLabel, "logout").Inc()
		c.Status(http.StatusNoContent)
		return nil
	})
}
