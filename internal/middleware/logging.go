package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RedactedValue replaces query strings that must not reach the logs
const RedactedValue = "[REDACTED]"

// StructuredLoggingMiddleware creates a middleware that logs requests with structured data.
// Requests under any of redactPrefixes (sign-in and callback routes) are logged without their query string.
func StructuredLoggingMiddleware(logger *zap.Logger, redactPrefixes ...string) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		userID := param.Keys["user_id"]
		requestID := param.Keys["request_id"]

		fields := []zap.Field{
			zap.Time("timestamp", param.TimeStamp),
			zap.String("method", param.Method),
			zap.String("path", param.Request.URL.Path),
			zap.String("query", loggableQuery(param.Request.URL.Path, param.Request.URL.RawQuery, redactPrefixes)),
			zap.String("ip", param.ClientIP),
			zap.String("user_agent", param.Request.UserAgent()),
			zap.Int("status", param.StatusCode),
			zap.Duration("latency", param.Latency),
			zap.Int("body_size", param.BodySize),
		}

		if id, ok := requestID.(string); ok {
			fields = append(fields, zap.String("request_id", id))
		}
		if id, ok := userID.(string); ok {
			fields = append(fields, zap.String("user_id", id))
		}

		if param.ErrorMessage != "" {
			fields = append(fields, zap.String("error", param.ErrorMessage))
		}

		// Log based on status code level
		switch {
		case param.StatusCode >= 500:
			logger.Error("HTTP Request", fields...)
		case param.StatusCode >= 400:
			logger.Warn("HTTP Request", fields...)
		default:
			logger.Info("HTTP Request", fields...)
		}

		// Return empty string as we handle logging ourselves
		return ""
	})
}

func loggableQuery(path, rawQuery string, redactPrefixes []string) string {
	if rawQuery == "" {
		return ""
	}
	for _, prefix := range redactPrefixes {
		if strings.HasPrefix(path, prefix) {
			return RedactedValue
		}
	}
	return rawQuery
}
