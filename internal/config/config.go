package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sh03m2a5h/edusync-session-go/internal/server"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Session SessionConfig `mapstructure:"session"`
	Auth    AuthConfig    `mapstructure:"auth"`
	OIDC    OIDCConfig    `mapstructure:"oidc"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Name is the public host name (optionally host:port) the service is
	// reached at. It supplies the cookie domain when none is configured.
	Name         string        `mapstructure:"name"`
	TLS          TLSConfig     `mapstructure:"tls"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// CacheConfig holds shared cache client configuration
type CacheConfig struct {
	Store          string               `mapstructure:"store"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Retry          RetryConfig          `mapstructure:"retry"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	// CleanupInterval applies to the memory store only
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// SessionConfig holds session management configuration
type SessionConfig struct {
	Secret          string        `mapstructure:"secret"`
	PreviousSecrets []string      `mapstructure:"previous_secrets"`
	UseSigner       bool          `mapstructure:"use_signer"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
	Lifetime        time.Duration `mapstructure:"lifetime"`
	Permanent       bool          `mapstructure:"permanent"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	MaxLoginAge     time.Duration `mapstructure:"max_login_age"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	CookieName      string        `mapstructure:"cookie_name"`
	CookieDomain    string        `mapstructure:"cookie_domain"`
	CookiePath      string        `mapstructure:"cookie_path"`
	CookieSecure    bool          `mapstructure:"cookie_secure"`
	CookieSameSite  string        `mapstructure:"cookie_same_site"`
}

// Secrets returns the signing secret followed by the secrets still accepted
// for verification
func (c *SessionConfig) Secrets() []string {
	secrets := make([]string, 0, 1+len(c.PreviousSecrets))
	if c.Secret != "" {
		secrets = append(secrets, c.Secret)
	}
	for _, s := range c.PreviousSecrets {
		if s != "" {
			secrets = append(secrets, s)
		}
	}
	return secrets
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Mode          string              `mapstructure:"mode"`
	AccessControl AccessControlConfig `mapstructure:"access_control"`
	Bypass        BypassConfig        `mapstructure:"bypass"`
}

// AccessControlConfig holds access control configuration
type AccessControlConfig struct {
	PublicPaths []string `mapstructure:"public_paths"`
}

// BypassConfig holds the identity used when auth mode is bypass
type BypassConfig struct {
	UserID string `mapstructure:"user_id"`
	Email  string `mapstructure:"email"`
	Name   string `mapstructure:"name"`
	Role   string `mapstructure:"role"`
}

// OIDCConfig holds OIDC provider configuration
type OIDCConfig struct {
	DiscoveryURL          string   `mapstructure:"discovery_url"`
	ClientID              string   `mapstructure:"client_id"`
	ClientSecret          string   `mapstructure:"client_secret"`
	Scopes                []string `mapstructure:"scopes"`
	UsePKCE               bool     `mapstructure:"use_pkce"`
	RedirectURL           string   `mapstructure:"redirect_url"`
	PostLogoutRedirectURL string   `mapstructure:"post_logout_redirect_url"`
	RoleClaim             string   `mapstructure:"role_claim"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	Output string        `mapstructure:"output"`
	File   FileLogConfig `mapstructure:"file"`
}

// FileLogConfig holds file logging configuration
type FileLogConfig struct {
	Path string `mapstructure:"path"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Provider    string  `mapstructure:"provider"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// Load loads configuration from file, environment variables, and command line flags
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" && configPath != "-" {
		v.SetConfigFile(configPath)
	} else if configPath == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/edusync-session")
	}

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "-" {
		if err := v.ReadInConfig(); err != nil {
			// It's okay if config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Bind environment variables
	v.SetEnvPrefix("EDUSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Deployment variable names
	bindEnvVars(v)

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyLegacyLifetime(&config); err != nil {
		return nil, err
	}

	// Validate config
	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls.enabled", false)

	// Cache defaults
	v.SetDefault("cache.store", "redis")
	v.SetDefault("cache.redis.url", "redis://localhost:6379/0")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 10)
	v.SetDefault("cache.redis.min_idle_conns", 5)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")
	v.SetDefault("cache.retry.max_attempts", 3)
	v.SetDefault("cache.retry.base_delay", "100ms")
	v.SetDefault("cache.retry.max_delay", "2s")
	v.SetDefault("cache.circuit_breaker.threshold", 5)
	v.SetDefault("cache.circuit_breaker.timeout", "30s")
	v.SetDefault("cache.cleanup_interval", "5m")

	// Session defaults
	v.SetDefault("session.use_signer", true)
	v.SetDefault("session.key_prefix", "session:")
	v.SetDefault("session.lifetime", "24h")
	v.SetDefault("session.permanent", true)
	v.SetDefault("session.lock_ttl", "10s")
	v.SetDefault("session.max_login_age", "24h")
	v.SetDefault("session.cleanup_interval", "0s")
	v.SetDefault("session.cookie_name", "session")
	v.SetDefault("session.cookie_path", "/")
	v.SetDefault("session.cookie_secure", false)
	v.SetDefault("session.cookie_same_site", "lax")

	// Auth defaults
	v.SetDefault("auth.mode", "oidc")
	v.SetDefault("auth.access_control.public_paths", []string{"/health", "/version", "/metrics", "/login", "/callback", "/session"})
	v.SetDefault("auth.bypass.user_id", "dev-user")
	v.SetDefault("auth.bypass.email", "dev@localhost")
	v.SetDefault("auth.bypass.name", "Development User")
	v.SetDefault("auth.bypass.role", "admin")

	// OIDC defaults
	v.SetDefault("oidc.scopes", []string{"openid", "email", "profile"})
	v.SetDefault("oidc.use_pkce", true)
	v.SetDefault("oidc.redirect_url", "http://localhost:8080/callback")
	v.SetDefault("oidc.post_logout_redirect_url", "http://localhost:8080/")
	v.SetDefault("oidc.role_claim", "role")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.provider", "otlp")
	v.SetDefault("tracing.service_name", "edusync-session")
	v.SetDefault("tracing.environment", "production")
	v.SetDefault("tracing.sample_rate", 0.1)
}

// bindEnvVars binds the variable names deployments already use
func bindEnvVars(v *viper.Viper) {
	// Server bindings
	v.BindEnv("server.host", "EDUSYNC_HOST")
	v.BindEnv("server.port", "EDUSYNC_PORT")
	v.BindEnv("server.name", "EDUSYNC_SERVER_NAME", "SERVER_NAME")

	// Cache bindings
	v.BindEnv("cache.store", "EDUSYNC_CACHE_STORE", "CACHE_STORE")
	v.BindEnv("cache.redis.url", "EDUSYNC_REDIS_URL", "REDIS_URL")
	v.BindEnv("cache.redis.password", "EDUSYNC_REDIS_PASSWORD", "REDIS_PASSWORD")

	// Session bindings
	v.BindEnv("session.secret", "EDUSYNC_SECRET_KEY", "SECRET_KEY")
	v.BindEnv("session.key_prefix", "SESSION_KEY_PREFIX")
	v.BindEnv("session.use_signer", "SESSION_USE_SIGNER")
	v.BindEnv("session.cookie_name", "SESSION_COOKIE_NAME")
	v.BindEnv("session.cookie_domain", "SESSION_COOKIE_DOMAIN")
	v.BindEnv("session.cookie_secure", "SESSION_COOKIE_SECURE")
	v.BindEnv("session.cookie_same_site", "SESSION_COOKIE_SAMESITE")

	// Auth bindings
	v.BindEnv("auth.mode", "AUTH_MODE")

	// OIDC bindings
	v.BindEnv("oidc.discovery_url", "OIDC_DISCOVERY_URL")
	v.BindEnv("oidc.client_id", "OIDC_CLIENT_ID")
	v.BindEnv("oidc.client_secret", "OIDC_CLIENT_SECRET")
	v.BindEnv("oidc.redirect_url", "OIDC_REDIRECT_URL")
	v.BindEnv("oidc.use_pkce", "OIDC_USE_PKCE")

	// Logging bindings
	v.BindEnv("logging.level", "LOG_LEVEL")
}

// applyLegacyLifetime reads PERMANENT_SESSION_LIFETIME, which deployments
// set as a number of seconds, or as a Go duration string
func applyLegacyLifetime(config *Config) error {
	raw := strings.TrimSpace(os.Getenv("PERMANENT_SESSION_LIFETIME"))
	if raw == "" {
		return nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		config.Session.Lifetime = time.Duration(secs) * time.Second
		return nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid PERMANENT_SESSION_LIFETIME %q: %w", raw, err)
	}
	config.Session.Lifetime = d
	return nil
}

// ToServerConfig converts ServerConfig to internal server.Config
func (c *ServerConfig) ToServerConfig() *server.Config {
	return &server.Config{
		Host:         c.Host,
		Port:         c.Port,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		IdleTimeout:  c.IdleTimeout,
		TLSCertFile:  c.tlsCertFile(),
		TLSKeyFile:   c.tlsKeyFile(),
	}
}

func (c *ServerConfig) tlsCertFile() string {
	if !c.TLS.Enabled {
		return ""
	}
	return c.TLS.CertFile
}

func (c *ServerConfig) tlsKeyFile() string {
	if !c.TLS.Enabled {
		return ""
	}
	return c.TLS.KeyFile
}
