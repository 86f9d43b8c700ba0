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

	"golang.org/x/sync/errgroup"

	"github.com/prooflab/cardproof-backend/internal/config"
	"github.com/prooflab/cardproof-backend/internal/http/handlers"
	"github.com/prooflab/cardproof-backend/internal/jobs"
	"github.com/prooflab/cardproof-backend/internal/platform/logger"
	"github.com/prooflab/cardproof-backend/internal/render"
	"github.com/prooflab/cardproof-backend/internal/server"
	"github.com/prooflab/cardproof-backend/internal/sse"
)

const reapInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	for _, dir := range []string{cfg.IntakeDir, cfg.ResultDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal("Cannot create data directory", "dir", dir, "error", err)
		}
	}
	if cfg.APIKey == "" || cfg.HMACSecret == "" {
		log.Warn("API_KEY or HMAC_SECRET unset; all submissions will be rejected")
	}

	registry := jobs.NewRegistry(cfg.QueueCapacity, cfg.JobTTL, log)
	hub := sse.NewHub(log)
	pool := jobs.NewPool(
		registry,
		func() jobs.Renderer { return render.New(cfg.RasterizerCmd, log) },
		cfg.ResultDir,
		cfg.JobTimeout,
		cfg.Workers,
		hub,
		log,
	)

	router := server.NewRouter(server.RouterConfig{
		Log:           log,
		APIKey:        cfg.APIKey,
		JobHandler:    handlers.NewJobHandler(log, cfg, registry, hub),
		HealthHandler: handlers.NewHealthHandler(cfg, registry),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Gateway listening", "port", cfg.Port, "workers", cfg.Workers, "queue_capacity", cfg.QueueCapacity)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return pool.Run(ctx)
	})
	g.Go(func() error {
		return registry.RunReaper(ctx, reapInterval)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
	log.Info("Shutdown complete")
}
