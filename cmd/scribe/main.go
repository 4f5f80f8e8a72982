package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bnema/scribe/config"
	"github.com/bnema/scribe/internal/adapter/converter/ffmpeg"
	HTTPAdapter "github.com/bnema/scribe/internal/adapter/http"
	pgstore "github.com/bnema/scribe/internal/adapter/storage/postgres"
	sqlitestore "github.com/bnema/scribe/internal/adapter/storage/sqlite"
	"github.com/bnema/scribe/internal/adapter/transcriber/openai"
	"github.com/bnema/scribe/internal/infrastructure/logger"
	"github.com/bnema/scribe/internal/port"
	"github.com/bnema/scribe/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error.Printf("failed to load config: %v", err)
		os.Exit(1)
	}
	logger.SetDebug(cfg.Debug)

	logger.Info.Printf("starting scribe on port %d, segments of %ds", cfg.Port, cfg.SegmentSeconds)

	uploadDir := filepath.Join(cfg.DataDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		logger.Error.Printf("failed to create upload directory: %v", err)
		os.Exit(1)
	}

	store, err := openStore(cfg)
	if err != nil {
		logger.Error.Printf("failed to open store: %v", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	converter := ffmpeg.NewConverter()
	transcriber := openai.NewClient(openai.Config{
		BaseURL:           cfg.TranscriberURL,
		APIKey:            cfg.TranscriberAPIKey,
		Model:             cfg.TranscriberModel,
		Timeout:           cfg.TranscriberTimeout,
		RequestsPerSecond: cfg.TranscriberRPS,
	})
	eventBus := service.NewEventBus()

	workspaces := service.NewWorkspaces(filepath.Join(cfg.DataDir, "workspaces"))
	sweeper, err := service.NewSweeper(workspaces, cfg.SweepSchedule, cfg.WorkspaceMaxAge)
	if err != nil {
		logger.Error.Printf("failed to schedule workspace sweep: %v", err)
		os.Exit(1)
	}
	// Leftovers from a previous crash go before any job starts.
	if n := sweeper.Sweep(); n > 0 {
		logger.Info.Printf("removed %d stale workspaces", n)
	}
	sweeper.Start()
	defer sweeper.Stop()

	worker := service.NewSegmentWorker(converter, transcriber, eventBus)
	pipeline := service.NewPipeline(converter, worker, store, workspaces, eventBus, service.PipelineConfig{
		SegmentSeconds: cfg.SegmentSeconds,
		MaxParallel:    cfg.MaxParallelSegments,
	})

	server := HTTPAdapter.NewServer(pipeline, store, store, eventBus, uploadDir, cfg.MaxUploadSizeMB, cfg.UploadsPerHour, cfg.BehindProxy)
	defer server.Close()

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       10 * time.Minute,
		// Uploads answer only after the whole file is transcribed.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info.Printf("received %s, shutting down", sig)

		// In-flight uploads keep their connection until their job ends.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error.Printf("http shutdown error: %v", err)
		}
	}()

	logger.Info.Printf("server listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error.Printf("server failed: %v", err)
		os.Exit(1)
	}
	<-done
	logger.Info.Printf("shutdown complete")
}

// openStore selects Postgres when DATABASE_URL is set and the SQLite file
// under DATA_DIR otherwise.
func openStore(cfg *config.Config) (port.Store, error) {
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		logger.Info.Printf("using postgres transcript store")
		return pgstore.NewStore(ctx, cfg.DatabaseURL)
	}
	logger.Info.Printf("using sqlite transcript store in %s", cfg.DataDir)
	return sqlitestore.NewStore(cfg.DataDir)
}
