package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/VkTheEncoder/Anime4i/internal/api"
	"github.com/VkTheEncoder/Anime4i/internal/api/handler"
	"github.com/VkTheEncoder/Anime4i/internal/config"
	"github.com/VkTheEncoder/Anime4i/internal/domain"
	"github.com/VkTheEncoder/Anime4i/internal/headers"
	"github.com/VkTheEncoder/Anime4i/internal/logging"
	"github.com/VkTheEncoder/Anime4i/internal/metrics"
	"github.com/VkTheEncoder/Anime4i/internal/repository"
	"github.com/VkTheEncoder/Anime4i/internal/service"
	"github.com/VkTheEncoder/Anime4i/internal/telemetry"
	"github.com/VkTheEncoder/Anime4i/internal/worker"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hlsgrab-server %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := logging.New(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting hlsgrab server",
		"version", Version,
		"build_time", BuildTime,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ensure storage directories exist
	if err := os.MkdirAll(cfg.Storage.BasePath, 0o755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}
	if err := os.MkdirAll(cfg.Storage.TempPath, 0o755); err != nil {
		return fmt.Errorf("create temp directory: %w", err)
	}

	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracing, err := telemetry.Init(ctx, "hlsgrab")
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	// Initialize dependencies
	events, err := service.NewEventService(service.EventServiceConfigFrom(cfg.Events), logger)
	if err != nil {
		return fmt.Errorf("init events: %w", err)
	}
	defer events.Close()

	pipeline, err := service.NewPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}

	jobRepo := repository.NewInMemoryJobRepository()
	jobSvc := service.NewJobService(
		jobRepo,
		headers.New(cfg.Download.UserAgent, cfg.Download.Cookie, cfg.Download.Referer),
		pipeline,
		service.NewFilesystemDeliverer(cfg.Storage, logger),
		events,
		service.JobServiceConfig{
			EmbedPatterns: cfg.Embed.Patterns,
			TempPath:      cfg.Storage.TempPath,
			Container:     cfg.Remux.Container,
		},
		logger,
	)

	// Event retention runs in the background
	go cleanupEvents(ctx, events, logger)

	// Start worker pool
	pool := worker.NewPool(
		worker.Config{
			Workers:      cfg.Worker.Count,
			PollInterval: cfg.Worker.PollInterval,
		},
		jobRepo,
		jobSvc,
		logger,
	)
	pool.Start()

	// Initialize handlers and router
	router := api.NewRouter(
		handler.NewJobHandler(wakeOnSubmit{jobSvc, pool}, logger),
		handler.NewHealthHandler(jobRepo, cfg.Storage.BasePath),
		handler.NewEventHandler(events, logger),
		cfg.Server,
		logger,
	)
	events.EmitSystem(domain.EventSeverityInfo, "server", "server started", domain.EventMetadata{
		"version": Version,
		"workers": cfg.Worker.Count,
	})

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal or a listener failure
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		events.EmitSystem(domain.EventSeverityWarning, "server", "server stopping", nil)
	case err := <-serverErr:
		if err != nil {
			_ = pool.Stop(5 * time.Second)
			return fmt.Errorf("http server: %w", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Stop workers; running jobs are cancelled and recorded as failed
	if err := pool.Stop(25 * time.Second); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	return nil
}

// wakeOnSubmit starts accepted jobs without waiting for the next poll.
type wakeOnSubmit struct {
	*service.JobService
	pool *worker.Pool
}

func (w wakeOnSubmit) Submit(ctx context.Context, text string) (*domain.Job, error) {
	job, err := w.JobService.Submit(ctx, text)
	if err == nil {
		w.pool.Notify()
	}
	return job, err
}

func cleanupEvents(ctx context.Context, events *service.EventService, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		if err := events.CleanupOldEvents(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("event cleanup failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
