package models

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// TreeNode is one node of a binary decision tree. Leaves carry Value.
type TreeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Leaf      bool    `json:"leaf"`
}

// Tree is a decision tree rooted at Nodes[0].
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// TreeEnsemble is either a random forest (leaf values are class
// probabilities, averaged) or a gradient-boosted model (leaf values are
// margins, summed and passed through a sigmoid).
type TreeEnsemble struct {
	NFeatures  int     `json:"n_features"`
	BaseMargin float64 `json:"base_margin"`
	Trees      []Tree  `json:"trees"`

	boosted bool
}

func decodeEnsemble(data []byte, boosted bool) (*TreeEnsemble, error) {
	var e TreeEnsemble
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("invalid tree ensemble: %w", err)
	}
	if len(e.Trees) == 0 {
		return nil, fmt.Errorf("invalid tree ensemble: no trees")
	}
	for i, t := range e.Trees {
		if len(t.Nodes) == 0 {
			return nil, fmt.Errorf("invalid tree ensemble: tree %d is empty", i)
		}
	}
	e.boosted = boosted
	return &e, nil
}

// Predict implements domain.Predictor.
func (e *TreeEnsemble) Predict(ctx context.Context, x []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := checkWidth(len(x), e.NFeatures, "tree ensemble"); err != nil {
		return 0, err
	}

	var sum float64
	for i := range e.Trees {
		v, err := e.Trees[i].eval(x, e.boosted)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += v
	}

	if e.boosted {
		return sigmoid(e.BaseMargin + sum), nil
	}
	return sum / float64(len(e.Trees)), nil
}

// eval walks the tree. Boosted trees split on x < threshold, forests on
// x <= threshold, matching the libraries the artifacts are exported from.
func (t *Tree) eval(x []float64, strict bool) (float64, error) {
	idx := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		if idx < 0 || idx >= len(t.Nodes) {
			return 0, fmt.Errorf("node index %d out of range", idx)
		}
		n := t.Nodes[idx]
		if n.Leaf {
			return n.Value, nil
		}
		if n.Feature < 0 || n.Feature >= len(x) {
			return 0, fmt.Errorf("node %d splits on feature %d, input has %d", idx, n.Feature, len(x))
		}

		v := x[n.Feature]
		left := v <= n.Threshold
		if strict {
			left = v < n.Threshold
		}
		if left {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
	return 0, fmt.Errorf("tree does not terminate")
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}
