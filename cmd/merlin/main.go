// Merlin - Ensemble fraud scoring for single transactions.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Command merlin scores one transaction read as JSON from stdin and writes
// exactly one JSON object to stdout. Diagnostics go to stderr. The exit
// status is 0 on success and 1 otherwise.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opensource-finance/merlin/internal/artifacts"
	"github.com/opensource-finance/merlin/internal/boundary"
	"github.com/opensource-finance/merlin/internal/config"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/ensemble"
	"github.com/opensource-finance/merlin/internal/models"
	"github.com/opensource-finance/merlin/internal/pipeline"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("merlin", flag.ContinueOnError)
	fs.SetOutput(stderr)
	modelDir := fs.String("models", "", "model directory (overrides MERLIN_MODEL_DIR)")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return fail(stdout, &domain.Error{Kind: domain.KindInternalUnexpected, Err: fmt.Errorf("invalid arguments: %w", err)})
	}
	// stdout carries only the prediction object
	if *showVersion {
		fmt.Fprintf(stderr, "merlin %s (%s, %s)\n", Version, Commit, BuildDate)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		return fail(stdout, &domain.Error{Kind: domain.KindInternalUnexpected, Err: err})
	}
	if *modelDir != "" {
		cfg.Artifacts.Source = "dir"
		cfg.Artifacts.Dir = *modelDir
	}

	slog.SetDefault(config.NewLogger(cfg.Logging, stderr))

	raw, err := io.ReadAll(stdin)
	if err != nil {
		return fail(stdout, &domain.Error{Kind: domain.KindInternalUnexpected, Err: fmt.Errorf("failed to read input: %w", err)})
	}
	slog.Debug("input received", "bytes", len(raw))

	var store domain.ModelStore
	source, err := artifacts.New(cfg.Artifacts)
	if err != nil {
		// Reported once models are needed, after the input is validated.
		store = unavailableStore{err: err}
	} else {
		defer source.Close()
		store = models.NewStore(source)
	}

	loader := pipeline.NewLoader(store, ensemble.ResolveOptions{NeuralEnabled: cfg.Models.NeuralEnabled})
	p, err := pipeline.New(loader, pipeline.Options{NeuralTimeout: cfg.Models.NeuralTimeout})
	if err != nil {
		// input errors are still reported first
		if _, derr := boundary.DecodeRecord(raw); derr != nil {
			return fail(stdout, derr)
		}
		return fail(stdout, &domain.Error{Kind: domain.KindInternalUnexpected, Err: err})
	}

	res, err := p.Run(ctx, raw)
	if err != nil {
		return fail(stdout, err)
	}

	if err := boundary.WriteResult(stdout, res); err != nil {
		slog.Error("failed to write result", "error", err)
		return 1
	}
	return 0
}

func fail(stdout io.Writer, err error) int {
	slog.Error("prediction failed", "kind", domain.KindOf(err), "error", err)
	if werr := boundary.WriteError(stdout, err); werr != nil {
		slog.Error("failed to write error", "error", werr)
	}
	return 1
}

// unavailableStore reports a source that could not be opened.
type unavailableStore struct {
	err error
}

func (s unavailableStore) Predictor(ctx context.Context, name string) (domain.Predictor, error) {
	return nil, s.err
}

func (s unavailableStore) Transformer(ctx context.Context, name string) (domain.Transformer, error) {
	return nil, s.err
}
