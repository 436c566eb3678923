package cache

import (
	"fmt"

	"github.com/sh03m2a5h/edusync-session-go/internal/config"
	"go.uber.org/zap"
)

// Factory creates cache clients based on configuration
type Factory struct {
	logger *zap.Logger
}

// NewFactory creates a new cache client factory
func NewFactory(logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		logger: logger,
	}
}

// CreateClient creates a metrics-instrumented cache client for the
// configured backend
func (f *Factory) CreateClient(cfg *config.CacheConfig) (Client, error) {
	switch cfg.Store {
	case "redis":
		client, err := f.createRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		return NewMetricsClient(client, "redis"), nil
	case "memory":
		return NewMetricsClient(f.createMemoryClient(cfg), "memory"), nil
	default:
		return nil, fmt.Errorf("unsupported cache store type: %s", cfg.Store)
	}
}

// createRedisClient creates a Redis-backed client
func (f *Factory) createRedisClient(cfg *config.CacheConfig) (*RedisClient, error) {
	if cfg.Redis.URL == "" {
		return nil, fmt.Errorf("Redis URL is required for Redis cache store")
	}

	redisConfig := DefaultRedisConfig()
	redisConfig.URL = cfg.Redis.URL
	redisConfig.Password = cfg.Redis.Password
	redisConfig.DB = cfg.Redis.DB
	if cfg.Redis.PoolSize > 0 {
		redisConfig.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.MinIdleConns > 0 {
		redisConfig.MinIdleConns = cfg.Redis.MinIdleConns
	}
	if cfg.Redis.DialTimeout > 0 {
		redisConfig.DialTimeout = cfg.Redis.DialTimeout
	}
	if cfg.Redis.ReadTimeout > 0 {
		redisConfig.ReadTimeout = cfg.Redis.ReadTimeout
	}
	if cfg.Redis.WriteTimeout > 0 {
		redisConfig.WriteTimeout = cfg.Redis.WriteTimeout
	}
	redisConfig.Retry = RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}
	redisConfig.BreakerThreshold = cfg.CircuitBreaker.Threshold
	redisConfig.BreakerTimeout = cfg.CircuitBreaker.Timeout

	client, err := NewRedisClient(redisConfig, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis cache client: %w", err)
	}

	f.logger.Info("Redis cache client created",
		zap.Int("retry_attempts", redisConfig.Retry.MaxAttempts),
		zap.Duration("retry_base_delay", redisConfig.Retry.BaseDelay),
		zap.Int("breaker_threshold", redisConfig.BreakerThreshold),
	)

	return client, nil
}

// createMemoryClient creates an in-process client
func (f *Factory) createMemoryClient(cfg *config.CacheConfig) *MemoryClient {
	memoryConfig := DefaultMemoryConfig()
	if cfg.CleanupInterval > 0 {
		memoryConfig.CleanupInterval = cfg.CleanupInterval
	}

	client := NewMemoryClient(memoryConfig, f.logger)

	f.logger.Warn("Memory cache client created; sessions are not shared between processes",
		zap.Duration("cleanup_interval", memoryConfig.CleanupInterval),
	)

	return client
}
