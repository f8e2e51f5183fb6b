// Package decision turns a blended probability into the final prediction
// result: fraud flag, status, risk score and risk factors.
package decision

import (
	"context"
	"fmt"
	"math"

	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/ensemble"
	"github.com/opensource-finance/merlin/internal/factors"
)

// Composer builds prediction results.
type Composer struct {
	factors *factors.Engine
}

// NewComposer creates a composer using the given factor engine.
func NewComposer(engine *factors.Engine) *Composer {
	return &Composer{factors: engine}
}

// Compose builds the result for a validated record and its ensemble outcome.
func (c *Composer) Compose(ctx context.Context, rec *domain.TransactionRecord, out *ensemble.Outcome) (*domain.PredictionResult, error) {
	p := out.Probability

	found, err := c.factors.Evaluate(ctx, &factors.Input{
		Amount:      rec.Amount,
		Day:         rec.Day,
		Type:        rec.Type,
		PairCode:    rec.PairCode,
		PartOfDay:   rec.PartOfDay,
		Probability: p,
		Method:      out.Method,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate factors: %w", err)
	}

	predictions := out.Predictions
	if predictions == nil {
		predictions = domain.ModelPredictions{}
	}

	return &domain.PredictionResult{
		IsFraud:          p > domain.FraudThreshold,
		Probability:      p,
		Status:           Status(p),
		RiskScore:        RiskScore(p),
		Amount:           rec.Amount,
		Type:             rec.Type,
		Day:              rec.Day,
		PairCode:         rec.PairCode,
		PartOfDay:        rec.PartOfDay,
		Factors:          found,
		PredictionMethod: out.Method,
		ModelPredictions: predictions,
	}, nil
}

// Status maps a probability to its decision tier.
func Status(p float64) domain.Status {
	switch {
	case p > domain.FraudThreshold:
		return domain.StatusFraud
	case p > domain.SuspiciousThreshold:
		return domain.StatusSuspicious
	default:
		return domain.StatusNormal
	}
}

// RiskScore is p*100 rounded half to even and clamped to [0,100].
func RiskScore(p float64) int {
	s := math.RoundToEven(p * 100)
	switch {
	case math.IsNaN(s) || s < 0:
		return 0
	case s > 100:
		return 100
	}
	return int(s)
}
