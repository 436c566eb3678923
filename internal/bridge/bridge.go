// Package bridge adapts error-returning handlers to gin.
package bridge

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sh03m2a5h/edusync-session-go/internal/server"
	"go.uber.org/zap"
)

// HandlerFunc is a gin handler that reports failure by returning an error.
type HandlerFunc func(c *gin.Context) error

// Error is a handler failure with the HTTP status it should be answered with.
type Error struct {
	Code    int
	Message string
	Err     error
}

// NewError returns an Error with code and a client-facing message.
func NewError(code int, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Handle runs h and turns a returned error into a logged JSON error response.
// Panics are logged with the request context and re-raised for gin.Recovery.
func Handle(logger *zap.Logger, h HandlerFunc) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("Handler panicked",
					append(requestFields(c), zap.Any("panic", rec), zap.Stack("stack"))...,
				)
				panic(rec)
			}
		}()

		err := h(c)
		if err == nil {
			return
		}

		code, message := status(err)
		fields := append(requestFields(c), zap.Int("status", code), zap.Error(err))
		if code >= http.StatusInternalServerError {
			logger.Error("Handler failed", fields...)
		} else {
			logger.Warn("Handler rejected request", fields...)
		}

		_ = c.Error(err)
		if c.Writer.Written() {
			c.Abort()
			return
		}
		c.AbortWithStatusJSON(code, gin.H{"error": message})
	}
}

func status(err error) (int, string) {
	var e *Error
	if errors.As(err, &e) && e.Code > 0 {
		message := e.Message
		if message == "" {
			message = http.StatusText(e.Code)
		}
		return e.Code, message
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

func requestFields(c *gin.Context) []zap.Field {
	return []zap.Field{
		zap.String("request_id", c.GetString(server.RequestIDKey)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
	}
}
