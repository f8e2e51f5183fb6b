// Package models decodes serialized model artifacts into predictors and
// transformers. Decoded values are immutable and safe for concurrent use.
package models

import (
	"encoding/json"
	"fmt"
)

// Artifact kinds.
const (
	KindStandardScaler   = "standard_scaler"
	KindPCA              = "pca"
	KindRandomForest     = "random_forest"
	KindGradientBoosting = "gradient_boosting"
	KindSequential       = "sequential"
)

type envelope struct {
	Kind string `json:"kind"`
}

// Decode parses an artifact and returns a domain.Predictor or a
// domain.Transformer depending on its kind.
func Decode(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid artifact: %w", err)
	}

	switch env.Kind {
	case KindStandardScaler:
		return decodeScaler(data)
	case KindPCA:
		return decodePCA(data)
	case KindRandomForest:
		return decodeEnsemble(data, false)
	case KindGradientBoosting:
		return decodeEnsemble(data, true)
	case KindSequential:
		return decodeNetwork(data)
	case "":
		return nil, fmt.Errorf("invalid artifact: missing kind")
	default:
		return nil, fmt.Errorf("unsupported artifact kind: %s", env.Kind)
	}
}

func checkWidth(got, want int, what string) error {
	if want > 0 && got != want {
		return fmt.Errorf("%s expects %d features, got %d", what, want, got)
	}
	return nil
}
