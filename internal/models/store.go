package models

import (
	"context"
	"fmt"

	"github.com/opensource-finance/merlin/internal/domain"
)

// Store implements domain.ModelStore on top of an artifact source.
type Store struct {
	source domain.ArtifactSource
}

// NewStore creates a model store reading from source.
func NewStore(source domain.ArtifactSource) *Store {
	return &Store{source: source}
}

// Predictor loads and decodes a classifier.
func (s *Store) Predictor(ctx context.Context, name string) (domain.Predictor, error) {
	v, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	p, ok := v.(domain.Predictor)
	if !ok {
		return nil, fmt.Errorf("artifact %s is not a predictor", name)
	}
	return p, nil
}

// Transformer loads and decodes a preprocessing step.
func (s *Store) Transformer(ctx context.Context, name string) (domain.Transformer, error) {
	v, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	t, ok := v.(domain.Transformer)
	if !ok {
		return nil, fmt.Errorf("artifact %s is not a transformer", name)
	}
	return t, nil
}

func (s *Store) load(ctx context.Context, name string) (any, error) {
	data, err := s.source.Fetch(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", name, err)
	}
	v, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return v, nil
}
