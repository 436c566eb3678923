package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sh03m2a5h/edusync-session-go/internal/metrics"
	"github.com/stretchr/testify/assert"
)

func TestMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		method         string
		path           string
		route          string
		wantRouteLabel string
		expectedStatus int
	}{
		{
			name:           "successful GET request",
			method:         http.MethodGet,
			path:           "/api/v1/courses",
			route:          "/api/v1/courses",
			wantRouteLabel: "/api/v1/courses",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "failed POST request",
			method:         http.MethodPost,
			path:           "/api/v1/courses",
			route:          "/api/v1/courses",
			wantRouteLabel: "/api/v1/courses",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "parameterised route uses the pattern",
			method:         http.MethodPut,
			path:           "/api/v1/courses/123",
			route:          "/api/v1/courses/:id",
			wantRouteLabel: "/api/v1/courses/:id",
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "unmatched path",
			method:         http.MethodGet,
			path:           "/nope/123",
			wantRouteLabel: unmatchedRoute,
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(MetricsMiddleware())
			if tt.route != "" {
				router.Handle(tt.method, tt.route, func(c *gin.Context) {
					c.Status(tt.expectedStatus)
				})
			}

			counter := metrics.HTTPRequestsTotal.WithLabelValues(tt.method, tt.wantRouteLabel, strconv.Itoa(tt.expectedStatus))
			before := testutil.ToFloat64(counter)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, before+1, testutil.ToFloat64(counter))
		})
	}
}
