package models

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// Network is a sequential neural network over an input shaped (n, 1),
// the layout a 1D convolutional classifier expects. The probability is the
// first unit of the last layer.
type Network struct {
	layers []layer
}

type layerSpec struct {
	Type       string          `json:"type"`
	Activation string          `json:"activation"`
	Kernel     int             `json:"kernel"`
	Filters    int             `json:"filters"`
	Pool       int             `json:"pool"`
	Weights    json.RawMessage `json:"weights"`
	Bias       []float64       `json:"bias"`
}

type networkSpec struct {
	Layers []layerSpec `json:"layers"`
}

// layer maps a (steps, channels) tensor to another.
type layer interface {
	forward(in [][]float64) ([][]float64, error)
}

func decodeNetwork(data []byte) (*Network, error) {
	var spec networkSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("invalid network: %w", err)
	}
	if len(spec.Layers) == 0 {
		return nil, fmt.Errorf("invalid network: no layers")
	}

	n := &Network{layers: make([]layer, 0, len(spec.Layers))}
	for i, ls := range spec.Layers {
		l, err := buildLayer(ls)
		if err != nil {
			return nil, fmt.Errorf("invalid network: layer %d (%s): %w", i, ls.Type, err)
		}
		n.layers = append(n.layers, l)
	}
	return n, nil
}

func buildLayer(ls layerSpec) (layer, error) {
	act, err := activation(ls.Activation)
	if err != nil {
		return nil, err
	}

	switch ls.Type {
	case "conv1d":
		var w [][][]float64
		if err := json.Unmarshal(ls.Weights, &w); err != nil {
			return nil, fmt.Errorf("weights: %w", err)
		}
		if len(w) == 0 || len(w) != ls.Kernel {
			return nil, fmt.Errorf("expected %d kernel taps, got %d", ls.Kernel, len(w))
		}
		for _, tap := range w {
			for _, in := range tap {
				if len(in) != ls.Filters {
					return nil, fmt.Errorf("expected %d filters, got %d", ls.Filters, len(in))
				}
			}
		}
		if len(ls.Bias) != ls.Filters {
			return nil, fmt.Errorf("expected %d biases, got %d", ls.Filters, len(ls.Bias))
		}
		return &conv1d{weights: w, bias: ls.Bias, act: act}, nil

	case "max_pool1d":
		if ls.Pool <= 0 {
			return nil, fmt.Errorf("pool size must be positive")
		}
		return &maxPool1d{size: ls.Pool}, nil

	case "flatten":
		return flatten{}, nil

	case "dense":
		var w [][]float64
		if err := json.Unmarshal(ls.Weights, &w); err != nil {
			return nil, fmt.Errorf("weights: %w", err)
		}
		if len(w) == 0 {
			return nil, fmt.Errorf("no weights")
		}
		for _, row := range w {
			if len(row) != len(ls.Bias) {
				return nil, fmt.Errorf("expected %d units, got %d", len(ls.Bias), len(row))
			}
		}
		return &dense{weights: w, bias: ls.Bias, act: act}, nil

	default:
		return nil, fmt.Errorf("unsupported layer type")
	}
}

// Predict implements domain.Predictor.
func (n *Network) Predict(ctx context.Context, x []float64) (float64, error) {
	t := make([][]float64, len(x))
	for i, v := range x {
		t[i] = []float64{v}
	}

	var err error
	for i, l := range n.layers {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		t, err = l.forward(t)
		if err != nil {
			return 0, fmt.Errorf("layer %d: %w", i, err)
		}
	}

	if len(t) != 1 || len(t[0]) == 0 {
		return 0, fmt.Errorf("network output has shape (%d, ?), expected a single row", len(t))
	}
	return t[0][0], nil
}

type conv1d struct {
	weights [][][]float64 // [tap][in][out]
	bias    []float64
	act     func(float64) float64
}

func (c *conv1d) forward(in [][]float64) ([][]float64, error) {
	k := len(c.weights)
	steps := len(in) - k + 1
	if steps <= 0 {
		return nil, fmt.Errorf("input length %d shorter than kernel %d", len(in), k)
	}
	channels := len(c.weights[0])
	for _, row := range in {
		if len(row) != channels {
			return nil, fmt.Errorf("expected %d channels, got %d", channels, len(row))
		}
	}

	out := make([][]float64, steps)
	for t := 0; t < steps; t++ {
		row := make([]float64, len(c.bias))
		for o := range row {
			sum := c.bias[o]
			for j := 0; j < k; j++ {
				for ch := 0; ch < channels; ch++ {
					sum += in[t+j][ch] * c.weights[j][ch][o]
				}
			}
			row[o] = c.act(sum)
		}
		out[t] = row
	}
	return out, nil
}

type maxPool1d struct {
	size int
}

func (p *maxPool1d) forward(in [][]float64) ([][]float64, error) {
	steps := len(in) / p.size
	if steps == 0 {
		return nil, fmt.Errorf("input length %d shorter than pool %d", len(in), p.size)
	}

	out := make([][]float64, steps)
	for t := 0; t < steps; t++ {
		row := make([]float64, len(in[t*p.size]))
		copy(row, in[t*p.size])
		for j := 1; j < p.size; j++ {
			for ch, v := range in[t*p.size+j] {
				if v > row[ch] {
					row[ch] = v
				}
			}
		}
		out[t] = row
	}
	return out, nil
}

type flatten struct{}

func (flatten) forward(in [][]float64) ([][]float64, error) {
	var flat []float64
	for _, row := range in {
		flat = append(flat, row...)
	}
	return [][]float64{flat}, nil
}

type dense struct {
	weights [][]float64 // [in][out]
	bias    []float64
	act     func(float64) float64
}

func (d *dense) forward(in [][]float64) ([][]float64, error) {
	out := make([][]float64, len(in))
	for r, row := range in {
		if len(row) != len(d.weights) {
			return nil, fmt.Errorf("expected %d inputs, got %d", len(d.weights), len(row))
		}
		units := make([]float64, len(d.bias))
		for o := range units {
			sum := d.bias[o]
			for i, v := range row {
				sum += v * d.weights[i][o]
			}
			units[o] = d.act(sum)
		}
		out[r] = units
	}
	return out, nil
}

func activation(name string) (func(float64) float64, error) {
	switch name {
	case "", "linear":
		return func(v float64) float64 { return v }, nil
	case "relu":
		return func(v float64) float64 { return math.Max(0, v) }, nil
	case "sigmoid":
		return sigmoid, nil
	case "tanh":
		return math.Tanh, nil
	default:
		return nil, fmt.Errorf("unsupported activation %q", name)
	}
}
