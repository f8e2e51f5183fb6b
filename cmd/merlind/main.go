// Merlin - Ensemble fraud scoring over HTTP and the event bus.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/merlin/internal/api"
	"github.com/opensource-finance/merlin/internal/artifacts"
	"github.com/opensource-finance/merlin/internal/bus"
	"github.com/opensource-finance/merlin/internal/config"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/ensemble"
	"github.com/opensource-finance/merlin/internal/models"
	"github.com/opensource-finance/merlin/internal/pipeline"
	"github.com/opensource-finance/merlin/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "merlind: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(config.NewLogger(cfg.Logging, os.Stdout))

	slog.Info("starting merlind",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"model_source", cfg.Artifacts.Source,
		"neural", cfg.Models.NeuralEnabled,
		"neural_timeout", cfg.Models.NeuralTimeout,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize artifact source
	source, err := artifacts.New(cfg.Artifacts)
	if err != nil {
		slog.Error("failed to initialize artifact source", "error", err)
		os.Exit(1)
	}
	defer source.Close()
	slog.Info("artifact source initialized", "source", cfg.Artifacts.Source)

	loader := pipeline.NewLoader(models.NewStore(source), ensemble.ResolveOptions{
		NeuralEnabled: cfg.Models.NeuralEnabled,
	})
	p, err := pipeline.New(loader, pipeline.Options{NeuralTimeout: cfg.Models.NeuralTimeout})
	if err != nil {
		slog.Error("failed to initialize pipeline", "error", err)
		os.Exit(1)
	}

	// Models missing at startup are not fatal: /ready reports it and
	// /models/reload picks them up once they are published.
	if m, err := loader.Models(ctx); err != nil {
		slog.Warn("models not loaded", "error", err)
	} else {
		slog.Info("models loaded",
			"tier", ensemble.SelectTier(m.Availability),
			"availability", m.Availability.Map(),
		)
	}

	// Initialize EventBus and the bus worker
	var (
		busImpl  domain.EventBus
		busWorker *worker.Worker
	)
	if cfg.EventBus.Type != "none" {
		busImpl, err = bus.New(cfg.EventBus)
		if err != nil {
			slog.Error("failed to initialize event bus", "error", err)
			os.Exit(1)
		}
		defer busImpl.Close()
		slog.Info("event bus initialized", "type", cfg.EventBus.Type)

		busWorker = worker.NewWorker(busImpl, p)
		if err := busWorker.Start(); err != nil {
			slog.Error("failed to start bus worker", "error", err)
			os.Exit(1)
		}
	}

	srv := api.NewServer(cfg.Server, p, busImpl, Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("merlind is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		slog.Error("server failed", "error", err)
	}

	// Stop consuming requests before the server goes away
	if busWorker != nil {
		if err := busWorker.Stop(); err != nil {
			slog.Error("failed to stop bus worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("merlind shutdown complete")
}
