package models

import (
	"context"
	"encoding/json"
	"fmt"
)

// PCA projects a centered vector onto its principal components.
type PCA struct {
	Mean       []float64   `json:"mean"`
	Components [][]float64 `json:"components"`
}

func decodePCA(data []byte) (*PCA, error) {
	var p PCA
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid pca: %w", err)
	}
	if len(p.Components) == 0 {
		return nil, fmt.Errorf("invalid pca: no components")
	}
	for i, c := range p.Components {
		if len(c) != len(p.Mean) {
			return nil, fmt.Errorf("invalid pca: component %d has %d values, mean has %d", i, len(c), len(p.Mean))
		}
	}
	return &p, nil
}

// Transform implements domain.Transformer.
func (p *PCA) Transform(ctx context.Context, x []float64) ([]float64, error) {
	if err := checkWidth(len(x), len(p.Mean), "pca"); err != nil {
		return nil, err
	}

	out := make([]float64, len(p.Components))
	for i, comp := range p.Components {
		var sum float64
		for j, w := range comp {
			sum += w * (x[j] - p.Mean[j])
		}
		out[i] = sum
	}
	return out, nil
}
