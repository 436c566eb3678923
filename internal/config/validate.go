package config

import (
	"fmt"
	"net/url"
	"strings"
)

// MinSecretLength is the shortest signing secret accepted at startup
const MinSecretLength = 32

// Validate validates the configuration
func Validate(config *Config) error {
	// Validate server config
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	// Validate cache config
	if err := validateCacheConfig(&config.Cache); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	// Validate session config
	if err := validateSessionConfig(&config.Session); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	// Validate auth config
	if err := validateAuthConfig(&config.Auth); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	// Validate OIDC config if auth mode is oidc
	if config.Auth.Mode == "oidc" {
		if err := validateOIDCConfig(&config.OIDC); err != nil {
			return fmt.Errorf("oidc config: %w", err)
		}
	}

	// Validate logging config
	if err := validateLoggingConfig(&config.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	// Validate tracing config if enabled
	if config.Tracing.Enabled {
		if err := validateTracingConfig(&config.Tracing); err != nil {
			return fmt.Errorf("tracing config: %w", err)
		}
	}

	return nil
}

func validateServerConfig(config *ServerConfig) error {
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("invalid port: %d", config.Port)
	}

	if config.TLS.Enabled {
		if config.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert file is required when TLS is enabled")
		}
		if config.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key file is required when TLS is enabled")
		}
	}

	if config.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if config.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if config.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}

	return nil
}

func validateCacheConfig(config *CacheConfig) error {
	switch config.Store {
	case "memory", "redis":
		// Valid stores
	default:
		return fmt.Errorf("invalid cache store: %s (must be 'memory' or 'redis')", config.Store)
	}

	if config.Store == "redis" {
		if config.Redis.URL == "" {
			return fmt.Errorf("redis URL is required when using redis store")
		}
		parsed, err := url.Parse(config.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
		if parsed.Scheme != "redis" && parsed.Scheme != "rediss" && parsed.Scheme != "unix" {
			return fmt.Errorf("invalid redis URL scheme: %s (must be 'redis', 'rediss' or 'unix')", parsed.Scheme)
		}
		if config.Redis.DB < 0 || config.Redis.DB > 15 {
			return fmt.Errorf("redis DB must be between 0 and 15")
		}
	}

	if config.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}
	if config.Retry.BaseDelay < 0 || config.Retry.MaxDelay < 0 {
		return fmt.Errorf("retry delays must be non-negative")
	}

	if config.CircuitBreaker.Threshold < 0 {
		return fmt.Errorf("circuit breaker threshold must be non-negative")
	}
	if config.CircuitBreaker.Timeout < 0 {
		return fmt.Errorf("circuit breaker timeout must be non-negative")
	}

	return nil
}

func validateSessionConfig(config *SessionConfig) error {
	// Signing is mandatory to run; refuse to start rather than run insecure
	if config.Secret == "" {
		return fmt.Errorf("secret is required (set SECRET_KEY)")
	}
	if len(config.Secret) < MinSecretLength {
		return fmt.Errorf("secret must be at least %d characters", MinSecretLength)
	}

	if config.KeyPrefix == "" {
		return fmt.Errorf("key prefix is required")
	}

	// Out-of-range lifetimes are clamped by the session store, not rejected
	if config.Lifetime < 0 {
		return fmt.Errorf("session lifetime cannot be negative")
	}

	if config.LockTTL <= 0 {
		return fmt.Errorf("lock TTL must be positive")
	}
	if config.MaxLoginAge < 0 {
		return fmt.Errorf("max login age cannot be negative")
	}
	if config.CleanupInterval < 0 {
		return fmt.Errorf("cleanup interval cannot be negative")
	}

	if config.CookieName == "" {
		return fmt.Errorf("cookie name is required")
	}

	if config.CookiePath == "" {
		return fmt.Errorf("cookie path is required")
	}

	switch strings.ToLower(config.CookieSameSite) {
	case "strict", "lax":
		// Valid values
	case "none":
		if !config.CookieSecure {
			return fmt.Errorf("cookie same site 'none' requires cookie_secure")
		}
	default:
		return fmt.Errorf("invalid cookie same site: %s (must be 'strict', 'lax', or 'none')", config.CookieSameSite)
	}

	return nil
}

func validateAuthConfig(config *AuthConfig) error {
	switch config.Mode {
	case "oidc":
		// Valid mode
	case "bypass":
		if config.Bypass.UserID == "" {
			return fmt.Errorf("bypass user ID is required when auth mode is bypass")
		}
	default:
		return fmt.Errorf("invalid auth mode: %s (must be 'oidc' or 'bypass')", config.Mode)
	}

	for _, p := range config.AccessControl.PublicPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("public path must start with '/': %s", p)
		}
	}

	return nil
}

func validateOIDCConfig(config *OIDCConfig) error {
	if config.DiscoveryURL == "" {
		return fmt.Errorf("discovery URL is required")
	}

	// Validate discovery URL
	parsedURL, err := url.Parse(config.DiscoveryURL)
	if err != nil {
		return fmt.Errorf("invalid discovery URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid discovery URL: must be a valid URL with scheme and host")
	}

	if config.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}

	if config.ClientSecret == "" {
		return fmt.Errorf("client secret is required")
	}

	if len(config.Scopes) == 0 {
		return fmt.Errorf("at least one scope is required")
	}

	// Validate redirect URLs
	if config.RedirectURL == "" {
		return fmt.Errorf("redirect URL is required")
	}
	if _, err := url.Parse(config.RedirectURL); err != nil {
		return fmt.Errorf("invalid redirect URL: %w", err)
	}

	if config.PostLogoutRedirectURL != "" {
		if _, err := url.Parse(config.PostLogoutRedirectURL); err != nil {
			return fmt.Errorf("invalid post logout redirect URL: %w", err)
		}
	}

	return nil
}

func validateLoggingConfig(config *LoggingConfig) error {
	switch strings.ToLower(config.Level) {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid log level: %s (must be 'debug', 'info', 'warn', or 'error')", config.Level)
	}

	switch strings.ToLower(config.Format) {
	case "json", "text", "console":
		// Valid formats
	default:
		return fmt.Errorf("invalid log format: %s (must be 'json', 'text' or 'console')", config.Format)
	}

	switch strings.ToLower(config.Output) {
	case "stdout", "stderr", "file":
		// Valid outputs
	default:
		return fmt.Errorf("invalid log output: %s (must be 'stdout', 'stderr', or 'file')", config.Output)
	}

	if strings.ToLower(config.Output) == "file" && config.File.Path == "" {
		return fmt.Errorf("log file path is required when output is 'file'")
	}

	return nil
}

func validateTracingConfig(config *TracingConfig) error {
	switch strings.ToLower(config.Provider) {
	case "otlp", "jaeger":
		// Both export over OTLP/HTTP
	default:
		return fmt.Errorf("invalid tracing provider: %s (must be 'otlp' or 'jaeger')", config.Provider)
	}

	if config.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	if _, err := url.Parse(config.Endpoint); err != nil {
		return fmt.Errorf("invalid tracing endpoint: %w", err)
	}

	if config.ServiceName == "" {
		return fmt.Errorf("service name is required when tracing is enabled")
	}

	if config.SampleRate < 0 || config.SampleRate > 1 {
		return fmt.Errorf("sample rate must be between 0 and 1")
	}

	return nil
}
