package domain

// FactorRule is a risk-factor heuristic: when Expression evaluates to true
// the Factor text is attached to the prediction.
type FactorRule struct {
	ID         string `json:"id"`
	Expression string `json:"expression"` // CEL, must return bool
	Factor     string `json:"factor"`
	Enabled    bool   `json:"enabled"`
}
