package bridge

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sh03m2a5h/edusync-session-go/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestError(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(http.StatusConflict, "already exists", cause)

	assert.Equal(t, "already exists: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "denied", NewError(http.StatusForbidden, "denied", nil).Error())
}

func TestHandle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		handler   HandlerFunc
		wantCode  int
		wantBody  string
		wantLevel zapcore.Level
		wantLogs  int
	}{
		{
			name: "success",
			handler: func(c *gin.Context) error {
				c.JSON(http.StatusOK, gin.H{"ok": true})
				return nil
			},
			wantCode: http.StatusOK,
			wantBody: `{"ok":true}`,
		},
		{
			name: "plain error",
			handler: func(c *gin.Context) error {
				return errors.New("database on fire")
			},
			wantCode:  http.StatusInternalServerError,
			wantBody:  `{"error":"Internal Server Error"}`,
			wantLevel: zapcore.ErrorLevel,
			wantLogs:  1,
		},
		{
			name: "typed client error",
			handler: func(c *gin.Context) error {
				return NewError(http.StatusUnauthorized, "sign in required", nil)
			},
			wantCode:  http.StatusUnauthorized,
			wantBody:  `{"error":"sign in required"}`,
			wantLevel: zapcore.WarnLevel,
			wantLogs:  1,
		},
		{
			name: "wrapped typed error without message",
			handler: func(c *gin.Context) error {
				return errors.Join(errors.New("context"), NewError(http.StatusNotFound, "", nil))
			},
			wantCode:  http.StatusNotFound,
			wantBody:  `{"error":"Not Found"}`,
			wantLevel: zapcore.WarnLevel,
			wantLogs:  1,
		},
		{
			name: "error after response started",
			handler: func(c *gin.Context) error {
				c.String(http.StatusAccepted, "partial")
				return errors.New("late failure")
			},
			wantCode:  http.StatusAccepted,
			wantBody:  "partial",
			wantLevel: zapcore.ErrorLevel,
			wantLogs:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)

			router := gin.New()
			router.Use(server.RequestIDMiddleware())
			router.GET("/thing", Handle(zap.New(core), tt.handler))

			req := httptest.NewRequest(http.MethodGet, "/thing", nil)
			req.Header.Set(server.RequestIDHeader, "req-123")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())

			require.Equal(t, tt.wantLogs, logs.Len())
			if tt.wantLogs > 0 {
				entry := logs.All()[0]
				assert.Equal(t, tt.wantLevel, entry.Level)
				fields := entry.ContextMap()
				assert.Equal(t, "req-123", fields["request_id"])
				assert.Equal(t, http.MethodGet, fields["method"])
				assert.Equal(t, "/thing", fields["path"])
			}
		})
	}
}

func TestHandleAttachesError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var seen []error
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Next()
		for _, e := range c.Errors {
			seen = append(seen, e.Err)
		}
	})
	cause := errors.New("boom")
	router.GET("/", Handle(nil, func(c *gin.Context) error { return cause }))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Len(t, seen, 1)
	assert.ErrorIs(t, seen[0], cause)
}

func TestHandlePanic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/", Handle(zap.New(core), func(c *gin.Context) error {
		panic("kaboom")
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	entries := logs.FilterMessage("Handler panicked").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "kaboom", fields["panic"])
	assert.NotEmpty(t, fields["stack"])
}
