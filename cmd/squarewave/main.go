package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/squarewave/internal/config"
	"github.com/friendsincode/squarewave/internal/logging"
	"github.com/friendsincode/squarewave/internal/server"
	"github.com/friendsincode/squarewave/internal/telemetry"
	"github.com/friendsincode/squarewave/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "squarewave",
	Short: "Squarewave - video game music player",
	Long:  "Squarewave plays a library of video game music with loop-aware fades, a persistent now-playing queue and remote control.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the player with its HTTP API",
	Long:  "Run the playback core, the remote-control API, now-playing publishers and the library watcher.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func initTracing() (func(), error) {
	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "squarewave",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize tracer: %w", err)
	}
	return func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}, nil
}

// startServer builds the server, restores the session and starts listening.
func startServer(ctx context.Context) (*server.Server, error) {
	srv, err := server.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		_ = srv.Close()
		return nil, err
	}

	httpServer := srv.HTTPServer()
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()
	return srv, nil
}

func stopServer(srv *server.Server) {
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("squarewave starting")

	shutdownTracing, err := initTracing()
	if err != nil {
		return err
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := startServer(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down gracefully...")
	stopServer(srv)

	logger.Info().Msg("squarewave stopped")
	return nil
}
