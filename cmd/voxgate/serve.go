package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skypro1111/voxgate/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Initialize models and expose the monitoring endpoints",
	Long: `Load every configured model capability and serve /health, /stats,
/config, /audit and /metrics until SIGINT or SIGTERM.`,
}

// RunE is assigned here because runServe reaches serveCmd through openApp,
// which would otherwise form an initialization cycle
func init() {
	serveCmd.RunE = runServe
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	logger := a.logger
	cfg := a.cfg

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("target_sample_rate_hz", cfg.Audio.TargetSampleRate),
		slog.Float64("quality_threshold", cfg.Quality.Threshold),
		slog.Float64("similarity_threshold", cfg.Matching.SimilarityThreshold),
		slog.Int("sample_cap", cfg.Enrollment.SampleCap),
		slog.Int("required_samples", cfg.Enrollment.RequiredSamples),
		slog.String("store_backend", cfg.Store.Backend),
		slog.String("audit_sink", cfg.Audit.Sink),
		slog.Bool("archive_enabled", cfg.Archive.Enabled),
		slog.String("device", cfg.Model.Device),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(server.HTTPServerConfig{
			Port:    cfg.HTTP.Port,
			Address: cfg.HTTP.Address,
			Enabled: cfg.HTTP.Enabled,
		}, logger, cfg, a.service, a.metrics, a.registry)

		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	// Health reports unavailable until the embedding model is loaded. The
	// service stays up degraded and keeps retrying in the background.
	if err := a.initModels(ctx); err != nil {
		logger.Error("Failed to initialize models, serving degraded", slog.String("error", err.Error()))
	}

	retryDone := make(chan struct{})
	go func() {
		defer close(retryDone)
		retryModels(ctx, a.gateway, cfg.Model.GetInitTimeout(), cfg.Model.GetRetryInterval(), logger)
	}()

	logger.Info("Service started successfully, waiting for signals...")

	<-ctx.Done()
	logger.Info("Received shutdown signal")
	logger.Info("Starting graceful shutdown...")

	<-retryDone
	stopHTTP(httpServer, logger)

	stats := a.service.GetStats()
	for op, s := range stats.Operations {
		logger.Info("Final operation statistics",
			slog.String("operation", op),
			slog.Uint64("total", s.Total),
			slog.Uint64("success", s.Success),
			slog.Uint64("failed", s.Failed),
		)
	}

	logger.Info("Service stopped")
	return nil
}

func stopHTTP(h *server.HTTPServer, logger *slog.Logger) {
	if h == nil {
		return
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := h.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}
}
