package ensemble

import "github.com/opensource-finance/merlin/internal/domain"

// Request is the mutable state of one prediction. It owns a copy of the
// availability so demotions never leak into other requests.
type Request struct {
	RF           domain.FeatureVector
	XGB          domain.FeatureVector
	Availability domain.Availability
	Predictions  domain.ModelPredictions

	models *Models
}

// NewRequest starts a prediction over the given encoded vectors.
func (m *Models) NewRequest(rf, xgb domain.FeatureVector) *Request {
	return &Request{
		RF:           rf,
		XGB:          xgb,
		Availability: m.Availability,
		Predictions:  make(domain.ModelPredictions),
		models:       m,
	}
}

// Outcome is the blended result of a request.
type Outcome struct {
	Probability float64
	Method      domain.PredictionMethod
	Tier        Tier
	Predictions domain.ModelPredictions
	Demoted     []domain.ModelKey
}
