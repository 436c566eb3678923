package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sh03m2a5h/edusync-session-go/internal/app"
	"github.com/sh03m2a5h/edusync-session-go/pkg/version"
	"github.com/spf13/cobra"
)

const defaultConfigFile = "config.yaml"

var (
	configFile string
	envFile    string
	host       string
	port       int
	authMode   string
	cacheStore string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "edusync-session",
	Short: "EduSync session service - signed-cookie sessions backed by Redis",
	Long: `edusync-session serves server-side sessions for the EduSync platform.
Session state lives in Redis under signed session ID cookies, with retrying
cache access, a circuit breaker and lock-guarded session ID regeneration
after sign-in.`,
	Version:           version.GetBuildInfo().Short(),
	PersistentPreRunE: loadEnvironment,
	RunE:              runServer,
	SilenceUsage:      true,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stored sessions whose sign-in is older than the maximum login age",
	RunE:  runCleanup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigFile, "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration (ignored when missing)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&cacheStore, "cache-store", "redis", "cache store (redis, memory)")

	rootCmd.Flags().StringVar(&host, "host", "0.0.0.0", "listen address")
	rootCmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port")
	rootCmd.Flags().StringVar(&authMode, "auth-mode", "oidc", "authentication mode (oidc, bypass)")

	rootCmd.AddCommand(cleanupCmd)
}

// loadEnvironment reads the dotenv file, then lets explicit flags override
// the environment before configuration is loaded
func loadEnvironment(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	flags := cmd.Flags()
	overrides := []struct {
		flag, env string
		value     func() string
	}{
		{"host", "EDUSYNC_HOST", func() string { return host }},
		{"port", "EDUSYNC_PORT", func() string { return strconv.Itoa(port) }},
		{"auth-mode", "AUTH_MODE", func() string { return authMode }},
		{"cache-store", "CACHE_STORE", func() string { return cacheStore }},
		{"log-level", "LOG_LEVEL", func() string { return logLevel }},
	}
	for _, o := range overrides {
		if flags.Lookup(o.flag) != nil && flags.Changed(o.flag) {
			if err := os.Setenv(o.env, o.value()); err != nil {
				return fmt.Errorf("failed to set %s: %w", o.env, err)
			}
		}
	}
	return nil
}

// configPath returns "-" for the default config file when it does not exist
func configPath() string {
	if configFile == defaultConfigFile {
		if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
			return "-"
		}
	}
	return configFile
}

func runServer(cmd *cobra.Command, args []string) error {
	application, err := app.New(configPath())
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return application.Run()
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := app.RunCleanup(ctx, configPath())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "scanned %d sessions, removed %d, failed %d\n",
		result.Scanned, result.Removed, result.Failed)
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
