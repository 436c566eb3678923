package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sh03m2a5h/edusync-session-go/pkg/version"
	"go.uber.org/zap"
)

// healthCheckTimeout bounds the dependency probe so /health answers while the cache is hanging
const healthCheckTimeout = 2 * time.Second

// HealthChecker is a dependency whose reachability is reported by /health
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Uptime      int64  `json:"uptime"`
	CacheStatus string `json:"cache_status"`
}

// VersionResponse represents version information response
type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

var startTime = time.Now()

// handleHealth reports process liveness and cache reachability
func (s *Server) handleHealth(c *gin.Context) {
	response := HealthResponse{
		Status:      "healthy",
		Version:     version.Version,
		Uptime:      int64(time.Since(startTime).Seconds()),
		CacheStatus: "unknown",
	}

	if s.checker != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		if err := s.checker.Ping(ctx); err != nil {
			s.logger.Warn("Cache health check failed", zap.Error(err))
			response.Status = "unhealthy"
			response.CacheStatus = "unreachable"
			c.JSON(http.StatusServiceUnavailable, response)
			return
		}
		response.CacheStatus = "ok"
	}

	c.JSON(http.StatusOK, response)
}

// handleVersion handles version information requests
func (s *Server) handleVersion(c *gin.Context) {
	buildInfo := version.GetBuildInfo()

	c.JSON(http.StatusOK, VersionResponse{
		Version:   buildInfo.Version,
		GitCommit: buildInfo.GitCommit,
		BuildDate: buildInfo.BuildDate,
		GoVersion: buildInfo.GoVersion,
		Platform:  buildInfo.Platform,
	})
}
