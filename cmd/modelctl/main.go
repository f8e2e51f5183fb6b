// Merlin - Artifact publishing for shared model sources.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Command modelctl publishes serialized model artifacts to a redis, sqlite
// or postgres source so that merlind instances can load them.
//
// Usage:
//
//	modelctl push -dir ./models -version 2025-06-01
//	modelctl versions random_forest_model
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/merlin/internal/artifacts"
	"github.com/opensource-finance/merlin/internal/config"
	"github.com/opensource-finance/merlin/internal/models"
)

// versionLister is implemented by sources that keep every version.
type versionLister interface {
	Versions(ctx context.Context, name string) ([]string, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "modelctl: %v\n", err)
		return 1
	}
	slog.SetDefault(config.NewLogger(cfg.Logging, stderr))

	switch args[0] {
	case "push":
		fs := flag.NewFlagSet("push", flag.ContinueOnError)
		fs.SetOutput(stderr)
		dir := fs.String("dir", cfg.Artifacts.Dir, "directory holding <name>.json artifacts")
		version := fs.String("version", time.Now().UTC().Format("20060102T150405"), "version label")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}

		pub, err := artifacts.NewPublisher(cfg.Artifacts)
		if err != nil {
			slog.Error("failed to open artifact source", "error", err)
			return 1
		}
		defer pub.Close()

		n, err := push(ctx, pub, *dir, *version)
		if err != nil {
			slog.Error("push failed", "error", err)
			return 1
		}
		fmt.Fprintf(stdout, "pushed %d artifacts as version %s\n", n, *version)
		return 0

	case "versions":
		if len(args) != 2 {
			usage(stderr)
			return 2
		}

		pub, err := artifacts.NewPublisher(cfg.Artifacts)
		if err != nil {
			slog.Error("failed to open artifact source", "error", err)
			return 1
		}
		defer pub.Close()

		lister, ok := pub.(versionLister)
		if !ok {
			slog.Error("artifact source does not keep versions", "source", cfg.Artifacts.Source)
			return 1
		}
		versions, err := lister.Versions(ctx, args[1])
		if err != nil {
			slog.Error("failed to list versions", "name", args[1], "error", err)
			return 1
		}
		for _, v := range versions {
			fmt.Fprintln(stdout, v)
		}
		return 0

	default:
		usage(stderr)
		return 2
	}
}

// push decodes every artifact in dir before storing any of them, so a
// corrupt file never reaches the shared source.
func push(ctx context.Context, pub artifacts.Publisher, dir, version string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}
	if len(paths) == 0 {
		return 0, fmt.Errorf("no artifacts in %s", dir)
	}

	payloads := make(map[string][]byte, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, err
		}
		if _, err := models.Decode(data); err != nil {
			return 0, fmt.Errorf("invalid artifact %s: %w", path, err)
		}
		payloads[strings.TrimSuffix(filepath.Base(path), ".json")] = data
	}

	var errs []error
	for name, data := range payloads {
		if err := pub.Put(ctx, name, version, data); err != nil {
			errs = append(errs, fmt.Errorf("failed to put %s: %w", name, err))
			continue
		}
		slog.Info("artifact published", "name", name, "version", version, "bytes", len(data))
	}
	if err := errors.Join(errs...); err != nil {
		return 0, err
	}
	return len(payloads), nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  modelctl push [-dir ./models] [-version v]   publish artifacts")
	fmt.Fprintln(w, "  modelctl versions <name>                     list stored versions")
	fmt.Fprintln(w, "\nThe target source comes from MERLIN_MODEL_SOURCE (redis, sqlite or postgres).")
}
