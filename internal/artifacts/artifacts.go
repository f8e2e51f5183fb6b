// Package artifacts provides sources of serialized model artifacts.
package artifacts

import (
	"context"
	"fmt"

	"github.com/opensource-finance/merlin/internal/domain"
)

// Publisher is a source that also accepts new artifact versions.
type Publisher interface {
	domain.ArtifactSource
	Put(ctx context.Context, name, version string, payload []byte) error
}

// New creates an artifact source based on configuration.
func New(cfg domain.ArtifactConfig) (domain.ArtifactSource, error) {
	switch cfg.Source {
	case "", "dir":
		return NewDirSource(cfg.Dir)
	case "redis":
		return NewRedisSource(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case "sqlite", "postgres":
		return NewSQLSource(cfg)
	default:
		return nil, fmt.Errorf("unsupported artifact source: %s", cfg.Source)
	}
}

// NewPublisher creates a writable artifact source. The directory source
// is read-only and cannot be used here.
func NewPublisher(cfg domain.ArtifactConfig) (Publisher, error) {
	switch cfg.Source {
	case "redis":
		return NewRedisSource(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case "sqlite", "postgres":
		return NewSQLSource(cfg)
	default:
		return nil, fmt.Errorf("artifact source %q does not support publishing", cfg.Source)
	}
}
