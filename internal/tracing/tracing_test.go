package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/sh03m2a5h/edusync-session-go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitialize(t *testing.T) {
	t.Run("disabled returns no-op shutdown", func(t *testing.T) {
		shutdown, err := Initialize(context.Background(), &config.TracingConfig{Enabled: false})
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("unsupported provider", func(t *testing.T) {
		_, err := Initialize(context.Background(), &config.TracingConfig{
			Enabled:     true,
			Provider:    "zipkin",
			Endpoint:    "localhost:4318",
			ServiceName: "edusync-session",
			SampleRate:  1,
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported tracing provider")
	})

	for _, provider := range []string{"otlp", "jaeger"} {
		t.Run(provider, func(t *testing.T) {
			previous := otel.GetTracerProvider()
			defer otel.SetTracerProvider(previous)

			shutdown, err := Initialize(context.Background(), &config.TracingConfig{
				Enabled:     true,
				Provider:    provider,
				Endpoint:    "http://127.0.0.1:4318",
				ServiceName: "edusync-session",
				Environment: "test",
				SampleRate:  1,
			})
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			assert.NoError(t, shutdown(ctx))
		})
	}
}

func TestExporterOptions(t *testing.T) {
	assert.Len(t, exporterOptions("https://collector:4318"), 1)
	assert.Len(t, exporterOptions("http://collector:4318"), 2)
	assert.Len(t, exporterOptions("collector:4318"), 2)
}

func TestGetTracer(t *testing.T) {
	assert.NotNil(t, GetTracer("test"))
}
