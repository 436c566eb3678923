package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sh03m2a5h/edusync-session-go/internal/auth"
	"github.com/sh03m2a5h/edusync-session-go/internal/auth/bypass"
	"github.com/sh03m2a5h/edusync-session-go/internal/auth/oidc"
	"github.com/sh03m2a5h/edusync-session-go/internal/bridge"
	"github.com/sh03m2a5h/edusync-session-go/internal/cache"
	"github.com/sh03m2a5h/edusync-session-go/internal/config"
	"github.com/sh03m2a5h/edusync-session-go/internal/metrics"
	"github.com/sh03m2a5h/edusync-session-go/internal/middleware"
	"github.com/sh03m2a5h/edusync-session-go/internal/server"
	"github.com/sh03m2a5h/edusync-session-go/internal/session"
	"github.com/sh03m2a5h/edusync-session-go/internal/tracing"
	"github.com/sh03m2a5h/edusync-session-go/pkg/version"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const shutdownTimeout = 30 * time.Second

// App represents the main application
type App struct {
	config          *config.Config
	logger          *zap.Logger
	server          *server.Server
	cache           cache.Client
	store           *session.Store
	shutdownTracing tracing.ShutdownFunc
	stopSweeper     context.CancelFunc
	sweeperDone     chan struct{}
}

// New loads configuration from configPath and creates a new application instance
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := setupLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	return NewWithConfig(context.Background(), cfg, logger)
}

// NewWithConfig creates an application from an already validated configuration
func NewWithConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	buildInfo := version.GetBuildInfo()
	metrics.SetBuildInfo(buildInfo.Version, buildInfo.GitCommit, buildInfo.BuildDate)

	shutdownTracing, err := tracing.Initialize(ctx, &cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	cacheClient, store, err := newSessionStore(cfg, logger)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	httpServer := server.New(cfg.Server.ToServerConfig(), logger)
	httpServer.SetHealthChecker(cacheClient)

	a := &App{
		config:          cfg,
		logger:          logger,
		server:          httpServer,
		cache:           cacheClient,
		store:           store,
		shutdownTracing: shutdownTracing,
	}

	if err := a.setupRoutes(ctx); err != nil {
		_ = cacheClient.Close()
		_ = shutdownTracing(ctx)
		return nil, err
	}

	return a, nil
}

// newSessionStore builds the cache client and the session store on top of it
func newSessionStore(cfg *config.Config, logger *zap.Logger) (cache.Client, *session.Store, error) {
	cacheClient, err := cache.NewFactory(logger).CreateClient(&cfg.Cache)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cache client: %w", err)
	}

	opts := session.OptionsFromConfig(&cfg.Session, cfg.Server.Name)
	store, err := session.NewStore(cacheClient, opts, logger)
	if err != nil {
		_ = cacheClient.Close()
		return nil, nil, fmt.Errorf("failed to create session store: %w", err)
	}
	return cacheClient, store, nil
}

// setupRoutes configures the middleware chain and the application routes
func (a *App) setupRoutes(ctx context.Context) error {
	router := a.server.Router()

	router.Use(server.RequestIDMiddleware())
	// Callback queries carry authorization codes and state
	router.Use(middleware.StructuredLoggingMiddleware(a.logger, "/login", "/callback"))
	router.Use(middleware.MetricsMiddleware())
	if a.config.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware(a.config.Tracing.ServiceName))
	}
	router.Use(middleware.SecurityHeadersMiddleware(a.config.Session.CookieSecure))

	if a.config.Metrics.Enabled {
		router.GET(a.config.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	web := router.Group("/")
	web.Use(a.store.Gin())

	loginPath := ""
	switch a.config.Auth.Mode {
	case "bypass":
		a.logger.Warn("Authentication bypass is enabled, every visitor is signed in as the development user",
			zap.String("user_id", bypass.Identity(&a.config.Auth.Bypass).UserID),
		)
		web.Use(bypass.AuthMiddleware(&a.config.Auth.Bypass, a.logger))
		web.POST("/logout", bypass.LogoutHandler(a.store, a.logger))
	case "oidc":
		handler, err := oidc.NewHandler(ctx, &a.config.OIDC, a.store, a.logger)
		if err != nil {
			return fmt.Errorf("failed to create OIDC handler: %w", err)
		}
		handler.Register(web)
		loginPath = "/login"
	default:
		return fmt.Errorf("unsupported auth mode: %s", a.config.Auth.Mode)
	}

	web.GET("/session", bridge.Handle(a.logger, a.handleSession))

	api := web.Group("/api")
	api.Use(auth.RequireLogin(a.store, a.logger, a.config.Auth.AccessControl.PublicPaths, loginPath))
	api.GET("/me", bridge.Handle(a.logger, a.handleMe))

	return nil
}

// SessionResponse describes the caller's session without exposing its ID
type SessionResponse struct {
	Authenticated bool           `json:"authenticated"`
	User          *auth.Identity `json:"user,omitempty"`
	LoginTime     *time.Time     `json:"login_time,omitempty"`
	Permanent     bool           `json:"permanent"`
}

// handleSession reports who the caller is
func (a *App) handleSession(c *gin.Context) error {
	sess := session.FromGin(c)
	if sess == nil {
		return errors.New("session middleware is not installed")
	}

	resp := SessionResponse{Permanent: sess.Permanent()}
	if user, ok := auth.CurrentUser(sess); ok && !a.store.LoginExpired(sess) {
		resp.Authenticated = true
		resp.User = &user
		if t, ok := sess.LoginTime(); ok {
			resp.LoginTime = &t
		}
	}

	c.JSON(http.StatusOK, resp)
	return nil
}

// handleMe returns the identity RequireLogin placed on the context
func (a *App) handleMe(c *gin.Context) error {
	userID := c.GetString(auth.ContextUserID)
	if userID == "" {
		return bridge.NewError(http.StatusUnauthorized, "Authentication required", nil)
	}

	c.JSON(http.StatusOK, auth.Identity{
		UserID: userID,
		Email:  c.GetString(auth.ContextUserEmail),
		Name:   c.GetString(auth.ContextUserName),
		Role:   c.GetString(auth.ContextUserRole),
	})
	return nil
}

// Handler returns the HTTP handler serving the application routes
func (a *App) Handler() http.Handler {
	return a.server.Router()
}

// Run starts the application and blocks until a shutdown signal arrives
func (a *App) Run() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	a.startSweeper()

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("Starting server",
			zap.String("host", a.config.Server.Host),
			zap.Int("port", a.config.Server.Port),
			zap.String("auth_mode", a.config.Auth.Mode),
			zap.String("cache_store", a.config.Cache.Store),
		)

		if err := a.server.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
	case sig := <-quit:
		a.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// startSweeper runs the expired-session sweep in the background when configured
func (a *App) startSweeper() {
	interval := a.config.Session.CleanupInterval
	if interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.stopSweeper = cancel
	a.sweeperDone = make(chan struct{})

	a.logger.Info("Starting session sweeper", zap.Duration("interval", interval))
	go func() {
		defer close(a.sweeperDone)
		a.store.RunSweeper(ctx, interval)
	}()
}

// shutdown gracefully shuts down the application
func (a *App) shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	var errs []error

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		errs = append(errs, err)
	}

	if a.stopSweeper != nil {
		a.stopSweeper()
		select {
		case <-a.sweeperDone:
		case <-ctx.Done():
			a.logger.Warn("Session sweeper did not stop before the shutdown deadline")
		}
	}

	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.Error("Failed to shutdown tracing", zap.Error(err))
		errs = append(errs, err)
	}

	if err := a.cache.Close(); err != nil {
		a.logger.Error("Failed to close cache client", zap.Error(err))
		errs = append(errs, err)
	}

	a.logger.Info("Application shutdown complete")
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// RunCleanup performs one expired-session sweep and exits. It needs only the
// cache and session configuration.
func RunCleanup(ctx context.Context, configPath string) (session.SweepResult, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return session.SweepResult{}, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := setupLogger(&cfg.Logging)
	if err != nil {
		return session.SweepResult{}, fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	return Cleanup(ctx, cfg, logger)
}

// Cleanup sweeps the sessions described by cfg once
func Cleanup(ctx context.Context, cfg *config.Config, logger *zap.Logger) (session.SweepResult, error) {
	cacheClient, store, err := newSessionStore(cfg, logger)
	if err != nil {
		return session.SweepResult{}, err
	}
	defer func() { _ = cacheClient.Close() }()

	return store.Sweep(ctx)
}

// setupLogger creates and configures the logger
func setupLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	var zapConfig zap.Config

	switch strings.ToLower(cfg.Format) {
	case "console", "text":
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Encoding = "console"
	default:
		zapConfig = zap.NewProductionConfig()
		zapConfig.Encoding = "json"
		zapConfig.EncoderConfig.TimeKey = "timestamp"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		zapConfig.OutputPaths = []string{"stdout"}
	case "stderr":
		zapConfig.OutputPaths = []string{"stderr"}
	case "file":
		if cfg.File.Path == "" {
			return nil, errors.New("log file path is required when output is file")
		}
		zapConfig.OutputPaths = []string{cfg.File.Path}
	default:
		return nil, fmt.Errorf("unsupported log output: %s", cfg.Output)
	}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	return zapConfig.Build()
}
