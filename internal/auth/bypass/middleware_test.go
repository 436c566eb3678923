package bypass

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sh03m2a5h/edusync-session-go/internal/auth"
	"github.com/sh03m2a5h/edusync-session-go/internal/cache"
	"github.com/sh03m2a5h/edusync-session-go/internal/config"
	"github.com/sh03m2a5h/edusync-session-go/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const testSecret = "bypass-test-secret-0123456789abcdef"

func newRouter(t *testing.T, cfg *config.BypassConfig) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	cacheCfg := cache.DefaultRedisConfig()
	cacheCfg.Retry = cache.RetryPolicy{MaxAttempts: 1}
	cacheCfg.BreakerThreshold = 0
	client := cache.NewRedisClientWithOptions(&redis.Options{Addr: mr.Addr()}, cacheCfg, zap.NewNop())
	t.Cleanup(func() { _ = client.Close() })

	opts := session.DefaultOptions()
	opts.Secrets = []string{testSecret}
	store, err := session.NewStore(client, opts, zaptest.NewLogger(t))
	require.NoError(t, err)

	router := gin.New()
	router.Use(store.Gin(), AuthMiddleware(cfg, zaptest.NewLogger(t)))
	router.GET("/test", auth.RequireLogin(store, nil, nil, ""), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":    c.GetString(auth.ContextUserID),
			"user_email": c.GetString(auth.ContextUserEmail),
			"user_name":  c.GetString(auth.ContextUserName),
			"user_role":  c.GetString(auth.ContextUserRole),
		})
	})
	router.POST("/logout", LogoutHandler(store, zaptest.NewLogger(t)))
	return router, mr
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	var found *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == session.DefaultCookieName {
			found = c
		}
	}
	return found
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.BypassConfig
		want auth.Identity
	}{
		{
			name: "defaults",
			want: auth.Identity{UserID: DefaultUserID, Email: DefaultUserEmail, Name: DefaultUserName},
		},
		{
			name: "configured",
			cfg:  config.BypassConfig{UserID: "dev-1", Email: "dev@example.com", Name: "Dev", Role: "admin"},
			want: auth.Identity{UserID: "dev-1", Email: "dev@example.com", Name: "Dev", Role: "admin"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Identity(&tt.cfg))
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	router, mr := newRouter(t, &config.BypassConfig{UserID: "dev-1", Role: "teacher"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"user_id": "dev-1",
		"user_email": "bypass@example.com",
		"user_name": "Bypass User",
		"user_role": "teacher"
	}`, w.Body.String())

	first := sessionCookie(w)
	require.NotNil(t, first)
	assert.Len(t, mr.Keys(), 1)

	// The fresh sign-in is moved to a new ID once, then left alone
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.AddCookie(first)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	second := sessionCookie(w)
	require.NotNil(t, second)
	assert.NotEqual(t, first.Value, second.Value)

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.AddCookie(second)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, sessionCookie(w))
	assert.Len(t, mr.Keys(), 1)
}

func TestLogoutHandler(t *testing.T) {
	router, mr := newRouter(t, &config.BypassConfig{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	cookie := sessionCookie(w)
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	cleared := sessionCookie(w)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
	assert.Empty(t, mr.Keys())
}

func TestAuthMiddlewareWithoutSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AuthMiddleware(&config.BypassConfig{}, nil))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
