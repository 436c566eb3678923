// Package auth holds the sign-in helpers shared by the authentication modes.
// A sign-in only writes session fields; the session store moves the session
// to a new ID on the following request.
package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sh03m2a5h/edusync-session-go/internal/session"
	"go.uber.org/zap"
)

// Session fields written at sign-in, next to the ones the session package owns.
const (
	KeyEmail = "email"
	KeyName  = "name"
	KeyRole  = "role"
)

// gin context keys set for authenticated requests.
const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
	ContextUserName  = "user_name"
	ContextUserRole  = "user_role"
)

// Identity is the signed-in user as recorded in the session.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty"`
}

// SignIn records id in sess as a fresh sign-in at now.
func SignIn(sess *session.Session, id Identity, now time.Time) {
	sess.Set(session.KeyUserID, id.UserID)
	sess.Set(session.KeyFresh, true)
	sess.Set(session.KeyLoginTime, now.UTC().Format(time.RFC3339))

	for key, value := range map[string]string{KeyEmail: id.Email, KeyName: id.Name, KeyRole: id.Role} {
		if value != "" {
			sess.Set(key, value)
		} else {
			sess.Delete(key)
		}
	}
}

// SignOut removes the stored session and its cookie.
func SignOut(ctx context.Context, store *session.Store, w http.ResponseWriter, sess *session.Session) error {
	return store.Delete(ctx, w, sess)
}

// CurrentUser returns the identity recorded in sess, if anyone is signed in.
func CurrentUser(sess *session.Session) (Identity, bool) {
	if sess == nil {
		return Identity{}, false
	}
	id := Identity{
		UserID: sess.GetString(session.KeyUserID),
		Email:  sess.GetString(KeyEmail),
		Name:   sess.GetString(KeyName),
		Role:   sess.GetString(KeyRole),
	}
	return id, id.UserID != ""
}

// SafeRedirect returns target if it is a path on this site, otherwise "/".
func SafeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return target
}

// RequireLogin rejects requests without a signed-in user. A sign-in older
// than the store's maximum login age is cleared and treated as absent.
// Paths in publicPaths pass through; an entry ending in "/" matches the
// whole subtree. Browser navigations are redirected to loginPath when it is
// set, everything else gets 401.
func RequireLogin(store *session.Store, logger *zap.Logger, publicPaths []string, loginPath string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	exact := make(map[string]bool)
	var prefixes []string
	for _, p := range publicPaths {
		if strings.HasSuffix(p, "/") {
			prefixes = append(prefixes, p)
		} else {
			exact[p] = true
		}
	}
	isPublic := func(path string) bool {
		if exact[path] {
			return true
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		}
		return false
	}

	return func(c *gin.Context) {
		if isPublic(c.Request.URL.Path) {
			c.Next()
			return
		}

		sess := session.FromGin(c)
		if sess == nil {
			logger.Error("Login check installed without session middleware")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
			return
		}

		user, ok := CurrentUser(sess)
		if ok && store.LoginExpired(sess) {
			logger.Info("Sign-in expired", zap.String("user_id", user.UserID))
			if err := store.Delete(c.Request.Context(), c.Writer, sess); err != nil {
				logger.Warn("Failed to clear expired session", zap.Error(err))
			}
			ok = false
		}

		if !ok {
			if loginPath != "" && wantsHTML(c.Request) {
				c.Redirect(http.StatusFound, loginPath+"?redirect_uri="+url.QueryEscape(c.Request.URL.RequestURI()))
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		c.Set(ContextUserID, user.UserID)
		c.Set(ContextUserEmail, user.Email)
		c.Set(ContextUserName, user.Name)
		c.Set(ContextUserRole, user.Role)
		c.Next()
	}
}

func wantsHTML(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}
