// Package ensemble combines the xgb, rf and cnn classifiers into a single
// fraud probability, degrading through fixed fallback tiers when a model
// or its preprocessing step is missing or fails.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/merlin/internal/domain"
)

// Models holds the loaded, read-only artifacts and the availability they
// resolve to. A Models value is shared by every request.
type Models struct {
	XGB       domain.Predictor
	XGBScaler domain.Transformer
	PCA       domain.Transformer
	RF        domain.Predictor
	RFScaler  domain.Transformer
	CNN       domain.Predictor

	Availability domain.Availability
}

// ResolveOptions controls model resolution.
type ResolveOptions struct {
	// NeuralEnabled reports whether the neural-network runtime is present.
	NeuralEnabled bool
}

// Resolve loads every artifact the ensemble may use. The random forest and
// its scaler are required; everything else is optional and only lowers the
// tier the predictor starts from.
func Resolve(ctx context.Context, store domain.ModelStore, opts ResolveOptions) (*Models, error) {
	m := &Models{}

	xgb, err := store.Predictor(ctx, domain.ArtifactXGBModel)
	if err != nil {
		slog.Warn("xgb model unavailable", "model", domain.ArtifactXGBModel, "error", err)
	} else {
		m.XGB = xgb
		m.Availability.XGB = true
	}

	rf, err := store.Predictor(ctx, domain.ArtifactRFModel)
	if err != nil {
		return nil, criticalError(domain.ArtifactRFModel, err)
	}
	m.RF = rf
	m.Availability.RF = true

	if opts.NeuralEnabled {
		cnn, err := store.Predictor(ctx, domain.ArtifactCNNModel)
		if err != nil {
			slog.Warn("cnn model unavailable", "model", domain.ArtifactCNNModel, "error", err)
		} else {
			m.CNN = cnn
			m.Availability.CNN = true
		}
	} else {
		slog.Warn("neural runtime disabled, cnn model not loaded")
	}

	rfScaler, err := store.Transformer(ctx, domain.ArtifactRFScaler)
	if err != nil {
		return nil, criticalError(domain.ArtifactRFScaler, err)
	}
	m.RFScaler = rfScaler

	if m.Availability.XGB {
		scaler, err := store.Transformer(ctx, domain.ArtifactXGBScaler)
		if err != nil {
			slog.Warn("xgb scaler unavailable", "model", domain.ArtifactXGBScaler, "error", err)
			m.XGB = nil
			m.Availability.Demote(domain.ModelXGB)
		} else {
			m.XGBScaler = scaler
		}
	}

	if m.Availability.XGB {
		pca, err := store.Transformer(ctx, domain.ArtifactPCA)
		if err != nil {
			slog.Warn("pca model unavailable", "model", domain.ArtifactPCA, "error", err)
		} else {
			m.PCA = pca
			m.Availability.PCA = true
		}
	}

	slog.Info("models resolved",
		"xgb", m.Availability.XGB,
		"rf", m.Availability.RF,
		"cnn", m.Availability.CNN,
		"pca", m.Availability.PCA,
		"tier", SelectTier(m.Availability),
	)

	return m, nil
}

func criticalError(name string, err error) error {
	slog.Error("required model unavailable", "model", name, "error", err)
	if errors.Is(err, domain.ErrModelNotFound) {
		return domain.WrapError(domain.KindMissingCriticalModel, err, "Model file not found: "+name)
	}
	return domain.WrapError(domain.KindMissingCriticalModel, err, fmt.Sprintf("Failed to load model %s: %v", name, err))
}
