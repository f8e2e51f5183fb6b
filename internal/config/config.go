// Package config loads Merlin configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/opensource-finance/merlin/internal/domain"
)

// Load reads an optional .env file and then MERLIN_* environment
// variables over domain.DefaultConfig. Variables already set in the
// process environment win over the file.
func Load() (*domain.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a configuration from a lookup function.
func FromEnv(getenv func(string) string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	r := reader{getenv: getenv}

	if r.boolean("MERLIN_DEBUG", false) {
		cfg.Logging.Level = "debug"
	}
	cfg.Logging.Level = r.str("MERLIN_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = r.str("MERLIN_LOG_FORMAT", cfg.Logging.Format)

	cfg.Models.NeuralEnabled = r.boolean("MERLIN_NEURAL", cfg.Models.NeuralEnabled)
	cfg.Models.NeuralTimeout = r.duration("MERLIN_NEURAL_TIMEOUT", cfg.Models.NeuralTimeout)

	a := &cfg.Artifacts
	a.Source = r.str("MERLIN_MODEL_SOURCE", a.Source)
	a.Dir = r.str("MERLIN_MODEL_DIR", a.Dir)
	a.RedisAddr = r.str("MERLIN_REDIS_ADDR", a.RedisAddr)
	a.RedisPassword = r.str("MERLIN_REDIS_PASSWORD", a.RedisPassword)
	a.RedisDB = r.integer("MERLIN_REDIS_DB", a.RedisDB)
	a.SQLitePath = r.str("MERLIN_SQLITE_PATH", a.SQLitePath)
	a.PostgresHost = r.str("MERLIN_POSTGRES_HOST", a.PostgresHost)
	a.PostgresPort = r.integer("MERLIN_POSTGRES_PORT", a.PostgresPort)
	a.PostgresUser = r.str("MERLIN_POSTGRES_USER", a.PostgresUser)
	a.PostgresPassword = r.str("MERLIN_POSTGRES_PASSWORD", a.PostgresPassword)
	a.PostgresDB = r.str("MERLIN_POSTGRES_DB", a.PostgresDB)
	a.PostgresSSLMode = r.str("MERLIN_POSTGRES_SSLMODE", a.PostgresSSLMode)

	s := &cfg.Server
	s.Host = r.str("MERLIN_HOST", s.Host)
	s.Port = r.integer("MERLIN_PORT", s.Port)
	s.ReadTimeout = r.integer("MERLIN_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = r.integer("MERLIN_WRITE_TIMEOUT", s.WriteTimeout)
	s.RateLimit = r.float("MERLIN_RATE_LIMIT", s.RateLimit)
	s.RateBurst = r.integer("MERLIN_RATE_BURST", s.RateBurst)

	b := &cfg.EventBus
	b.Type = r.str("MERLIN_BUS", b.Type)
	b.NATSUrl = r.str("MERLIN_NATS_URL", b.NATSUrl)
	b.NATSToken = r.str("MERLIN_NATS_TOKEN", b.NATSToken)

	if r.err != nil {
		return nil, r.err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func Validate(cfg *domain.Config) error {
	switch cfg.Artifacts.Source {
	case "dir", "redis", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid MERLIN_MODEL_SOURCE: %q", cfg.Artifacts.Source)
	}
	switch cfg.EventBus.Type {
	case "none", "channel", "nats":
	default:
		return fmt.Errorf("invalid MERLIN_BUS: %q", cfg.EventBus.Type)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid MERLIN_LOG_FORMAT: %q", cfg.Logging.Format)
	}
	if cfg.Models.NeuralTimeout <= 0 {
		return fmt.Errorf("MERLIN_NEURAL_TIMEOUT must be positive")
	}
	return nil
}

// NewLogger builds the process logger. Diagnostics never go to stdout in
// subprocess mode, so callers pass os.Stderr there.
func NewLogger(cfg domain.LoggingConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// reader keeps the first parse error.
type reader struct {
	getenv func(string) string
	err    error
}

func (r *reader) str(key, def string) string {
	if v := r.getenv(key); v != "" {
		return v
	}
	return def
}

func (r *reader) boolean(key string, def bool) bool {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

func (r *reader) integer(key string, def int) int {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return i
}

func (r *reader) float(key string, def float64) float64 {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return f
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *reader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}
