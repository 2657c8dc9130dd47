// cmd/synthd/main.go
// Package main implements the entry point for the synthesis backend.
// It initializes all components and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VidSynth/vidsynth-studio-go/internal/config"
	"github.com/VidSynth/vidsynth-studio-go/internal/event"
	"github.com/VidSynth/vidsynth-studio-go/internal/media"
	"github.com/VidSynth/vidsynth-studio-go/internal/server"
	"github.com/VidSynth/vidsynth-studio-go/internal/storage"
	"github.com/VidSynth/vidsynth-studio-go/internal/telemetry"
	"github.com/VidSynth/vidsynth-studio-go/internal/worker"
)

// main is the entry point for the synthesis backend.
// It initializes all components, starts the worker and the HTTP server, and
// handles graceful shutdown.
func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging for the application
	logLevel := slog.LevelInfo
	if cfg.Env == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	_, err = telemetry.InitTracer("synth-service")
	if err != nil {
		logger.Error("failed to initialize OpenTelemetry tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.ShutdownTracer(ctx)
	}()

	// Initialize storage backend (PostgreSQL or in-memory)
	var store storage.Store
	if cfg.DatabaseDSN != "" {
		// Use PostgreSQL storage for production
		store, err = storage.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			logger.Error("failed to initialize postgres storage", "error", err)
			os.Exit(1)
		}
	} else {
		// Use in-memory storage for development/testing
		store = storage.NewMemory()
	}

	// Initialize event publisher (NATS JetStream or no-op)
	pub := event.NewPublisher(cfg.NATSURL)
	defer pub.Close()

	// Initialize media client if S3 configuration is present
	var mediaClient *media.S3Client
	if cfg.S3Endpoint != "" && cfg.S3Bucket != "" {
		mediaClient, err = media.NewS3Client(cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket, cfg.S3AccessKey, cfg.S3SecretKey)
		if err != nil {
			logger.Error("failed to initialize S3 client", "error", err)
			os.Exit(1)
		}
	}

	// The hub fans progress events out to SSE subscribers; the worker runs
	// generation jobs off its queue.
	hub := server.NewProgressHub()
	runner := worker.NewRunner(store, hub, pub, nil, logger, cfg.GenerationStepDelay)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	runner.Start(workerCtx)

	// Create HTTP mux with all handlers and middleware
	mux, err := server.NewMux(server.Deps{
		Store:            store,
		Publisher:        pub,
		Hub:              hub,
		Media:            mediaClient,
		Submit:           runner.Submit,
		Logger:           logger,
		MaxMediaSize:     cfg.MaxMediaSize,
		AllowedMimeTypes: cfg.AllowedMimeTypes,
	})
	if err != nil {
		logger.Error("failed to initialize HTTP mux", "error", err)
		os.Exit(1)
	}

	// Create HTTP server. WriteTimeout stays unset because the progress
	// endpoint holds its response open for the lifetime of a job.
	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	// Start server in a separate goroutine
	go func() {
		logger.Info("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Handle graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server, then stop the worker loop
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}
	stopWorker()
	runner.Wait()

	// Close PostgreSQL storage if used
	if postgresStore, ok := store.(interface{ Close() }); ok {
		postgresStore.Close()
	}

	logger.Info("server exited")
}
