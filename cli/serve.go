package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/quay-labs/rosterd/account"
	"github.com/quay-labs/rosterd/auth"
	"github.com/quay-labs/rosterd/config"
	rosterotel "github.com/quay-labs/rosterd/otel"
	"github.com/quay-labs/rosterd/server"
	"github.com/quay-labs/rosterd/store"
)

// Version is stamped by main via ldflags.
var Version = "dev"

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the rosterd HTTP server",
		RunE:  runServe,
	}

	cmd.Flags().String("config", "", "Path to rosterd.yaml")
	cmd.Flags().IntP("port", "p", 8080, "Listen port")
	cmd.Flags().String("host", "0.0.0.0", "Listen host")
	cmd.Flags().String("cors-origin", "*", "Allowed CORS origin")
	cmd.Flags().String("db-driver", "", "Database driver (sqlite or postgres)")
	cmd.Flags().String("db-dsn", "", "Database DSN (default: ~/.rosterd/rosterd.db)")
	cmd.Flags().Duration("session-ttl", account.DefaultSessionTTL, "Session lifetime")
	cmd.Flags().String("sweep-schedule", account.DefaultSweepSchedule, "Cron schedule for the expired-session sweep")
	cmd.Flags().String("otlp-endpoint", "", "OTLP/HTTP trace endpoint (empty disables tracing)")
	cmd.Flags().Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", 60*time.Second, "HTTP write timeout")
	cmd.Flags().Int64("max-body", 1<<20, "Max request body size in bytes")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	// A missing .env is fine; it only exists in dev setups.
	_ = godotenv.Load()

	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}

	logger := slog.Default()

	dsn, err := resolveDSN(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return exitError(exitStorage, "resolving database path: %v", err)
	}
	st, err := store.Open(cmd.Context(), cfg.Database.Driver, dsn)
	if err != nil {
		return exitError(exitStorage, "opening store: %v", err)
	}
	defer func() {
		_ = st.Close()
	}()

	service, err := account.NewService(account.Config{
		Store:      st,
		Hasher:     auth.NewHasher(),
		SessionTTL: cfg.Sessions.TTL.Std(),
		Logger:     logger,
	})
	if err != nil {
		return exitError(exitRuntime, "creating account service: %v", err)
	}

	sweeper, err := account.NewSweeper(account.SweeperConfig{
		Store:    st,
		Schedule: cfg.Sessions.SweepSchedule,
		Logger:   logger,
	})
	if err != nil {
		return exitError(exitConfig, "configuring session sweep: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	shutdownTelemetry, err := rosterotel.Setup(cmd.Context(), cfg.Telemetry.OTLPEndpoint, Version)
	if err != nil {
		return exitError(exitRuntime, "initializing telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	instrument, err := rosterotel.NewHTTP(
		otelapi.GetTracerProvider().Tracer("rosterd/server"),
		otelapi.GetMeterProvider().Meter("rosterd/server"),
	)
	if err != nil {
		return exitError(exitRuntime, "initializing request instrumentation: %v", err)
	}

	readTimeout, _ := cmd.Flags().GetDuration("read-timeout")
	writeTimeout, _ := cmd.Flags().GetDuration("write-timeout")
	maxBody, _ := cmd.Flags().GetInt64("max-body")

	apiServer := server.New(server.Config{
		Service:    service,
		CORSOrigin: cfg.CORS.Origin,
		MaxBody:    maxBody,
		Logger:     logger,
		Instrument: instrument.Middleware,
	})

	httpServer := &http.Server{
		Addr:         cfg.Listen.Addr(),
		Handler:      apiServer.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "rosterd listening on %s\n", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitError(exitRuntime, "shutdown error: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}
}

// loadServeConfig merges file, environment, and flags in ascending
// precedence.
func loadServeConfig(cmd *cobra.Command) (config.File, error) {
	explicitPath, _ := cmd.Flags().GetString("config")

	var cfg config.File
	path, found, err := config.Discover(explicitPath)
	if err != nil {
		return config.File{}, exitError(exitConfig, "%v", err)
	}
	if found {
		cfg, err = config.Load(path)
		if err != nil {
			return config.File{}, exitError(exitConfig, "%v", err)
		}
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return config.File{}, exitError(exitConfig, "%v", err)
	}

	if cmd.Flags().Changed("host") || cfg.Listen.Host == "" {
		cfg.Listen.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") || cfg.Listen.Port == 0 {
		cfg.Listen.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("cors-origin") || cfg.CORS.Origin == "" {
		cfg.CORS.Origin, _ = cmd.Flags().GetString("cors-origin")
	}
	if cmd.Flags().Changed("db-driver") {
		cfg.Database.Driver, _ = cmd.Flags().GetString("db-driver")
	}
	if cmd.Flags().Changed("db-dsn") {
		cfg.Database.DSN, _ = cmd.Flags().GetString("db-dsn")
	}
	if cmd.Flags().Changed("session-ttl") || cfg.Sessions.TTL <= 0 {
		ttl, _ := cmd.Flags().GetDuration("session-ttl")
		cfg.Sessions.TTL = config.Duration(ttl)
	}
	if cmd.Flags().Changed("sweep-schedule") || strings.TrimSpace(cfg.Sessions.SweepSchedule) == "" {
		cfg.Sessions.SweepSchedule, _ = cmd.Flags().GetString("sweep-schedule")
	}
	if cmd.Flags().Changed("otlp-endpoint") {
		cfg.Telemetry.OTLPEndpoint, _ = cmd.Flags().GetString("otlp-endpoint")
	}
	return cfg, nil
}

// resolveDSN fills in the default SQLite path when no DSN is configured.
// Postgres has no sensible default and must be given one.
func resolveDSN(driver, dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn != "" {
		return dsn, nil
	}
	if driver == "postgres" {
		return "", errors.New("postgres requires an explicit dsn")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	dir := filepath.Join(home, ".rosterd")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return filepath.Join(dir, "rosterd.db"), nil
}
