package domain

// PredictionMethod names the fallback tier that produced a result.
type PredictionMethod string

const (
	MethodRFMajorEnsemble PredictionMethod = "rf_major_ensemble"
	MethodRFXGBEnsemble   PredictionMethod = "rf_xgb_ensemble"
	MethodRFOnlyFallback  PredictionMethod = "rf_only_fallback"
	MethodRFMajorWeighted PredictionMethod = "rf_major_weighted"
	MethodRFOnly          PredictionMethod = "rf_only"
)

// Status is the coarse decision tier derived from the final probability.
type Status string

const (
	StatusFraud      Status = "fraud"
	StatusSuspicious Status = "suspicious"
	StatusNormal     Status = "normal"
)

// Decision thresholds.
const (
	FraudThreshold      = 0.5
	SuspiciousThreshold = 0.3
)

// PredictionResult is the single success object written per request.
// Field order matches the wire contract.
type PredictionResult struct {
	IsFraud          bool             `json:"isFraud"`
	Probability      float64          `json:"probability"`
	Status           Status           `json:"status"`
	RiskScore        int              `json:"riskScore"`
	Amount           float64          `json:"amount"`
	Type             string           `json:"type"`
	Day              int              `json:"day"`
	PairCode         string           `json:"transaction_pair_code"`
	PartOfDay        string           `json:"part_of_the_day"`
	Factors          []string         `json:"factors"`
	PredictionMethod PredictionMethod `json:"predictionMethod"`
	ModelPredictions ModelPredictions `json:"modelPredictions"`
}
