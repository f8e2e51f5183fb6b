package domain

import (
	"context"
	"errors"
)

// ErrModelNotFound is returned by a ModelStore or ArtifactSource when no
// artifact exists under the requested name.
var ErrModelNotFound = errors.New("model not found")

// Predictor is any pretrained classifier: it maps a feature vector to a
// probability of fraud in [0,1].
type Predictor interface {
	Predict(ctx context.Context, x []float64) (float64, error)
}

// Transformer is a preprocessing step (scaler, dimensionality reducer).
type Transformer interface {
	Transform(ctx context.Context, x []float64) ([]float64, error)
}

// ModelStore resolves logical model names into ready-to-use objects.
type ModelStore interface {
	// Predictor loads a classifier. Returns ErrModelNotFound if absent.
	Predictor(ctx context.Context, name string) (Predictor, error)

	// Transformer loads a preprocessing step. Returns ErrModelNotFound if absent.
	Transformer(ctx context.Context, name string) (Transformer, error)
}

// ArtifactSource fetches raw serialized artifacts by logical name.
type ArtifactSource interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

// Logical artifact names.
const (
	ArtifactXGBModel  = "xgboost_model"
	ArtifactXGBScaler = "scaler"
	ArtifactPCA       = "pca_model"
	ArtifactRFModel   = "random_forest_model"
	ArtifactRFScaler  = "scaler_rf"
	ArtifactCNNModel  = "cnn_model"
)

// ModelKey identifies a model family in availability and prediction maps.
type ModelKey string

const (
	ModelXGB ModelKey = "xgb"
	ModelRF  ModelKey = "rf"
	ModelCNN ModelKey = "cnn"
	ModelPCA ModelKey = "pca"
)

// Availability records which model families can be used for a request.
// A flag may be cleared during a request (demotion) but never set again.
type Availability struct {
	XGB bool
	RF  bool
	CNN bool
	PCA bool
}

// Demote marks a model family unavailable.
func (a *Availability) Demote(key ModelKey) {
	switch key {
	case ModelXGB:
		a.XGB = false
	case ModelRF:
		a.RF = false
	case ModelCNN:
		a.CNN = false
	case ModelPCA:
		a.PCA = false
	}
}

// Has reports whether a model family is available.
func (a Availability) Has(key ModelKey) bool {
	switch key {
	case ModelXGB:
		return a.XGB
	case ModelRF:
		return a.RF
	case ModelCNN:
		return a.CNN
	case ModelPCA:
		return a.PCA
	}
	return false
}

// Map returns the availability as a key -> flag map for logging and APIs.
func (a Availability) Map() map[string]bool {
	return map[string]bool{
		string(ModelXGB): a.XGB,
		string(ModelRF):  a.RF,
		string(ModelCNN): a.CNN,
		string(ModelPCA): a.PCA,
	}
}

// ModelPredictions maps a model key to the probability it produced.
// Only models that succeeded have an entry.
type ModelPredictions map[string]float64
