package models

import (
	"context"
	"encoding/json"
	"fmt"
)

// StandardScaler centers and scales each feature: (x - mean) / scale.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func decodeScaler(data []byte) (*StandardScaler, error) {
	var s StandardScaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid scaler: %w", err)
	}
	if len(s.Mean) == 0 || len(s.Mean) != len(s.Scale) {
		return nil, fmt.Errorf("invalid scaler: mean has %d values, scale has %d", len(s.Mean), len(s.Scale))
	}
	return &s, nil
}

// Transform implements domain.Transformer.
func (s *StandardScaler) Transform(ctx context.Context, x []float64) ([]float64, error) {
	if err := checkWidth(len(x), len(s.Mean), "scaler"); err != nil {
		return nil, err
	}

	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale == 0 {
			// constant feature during fitting
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out, nil
}
