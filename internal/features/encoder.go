// Package features turns validated transactions into model inputs.
package features

import (
	"github.com/opensource-finance/merlin/internal/domain"
)

// Encode builds the rf-family and xgb-family feature vectors for a record.
// Both start identical; the xgb copy is later transformed by the xgb
// scaler and reducer only.
func Encode(rec *domain.TransactionRecord) (rf, xgb domain.FeatureVector) {
	rf = make(domain.FeatureVector, 0, domain.FeatureCount)
	rf = append(rf, rec.Amount, float64(rec.Day))
	rf = append(rf, OneHot(rec.Type, domain.TypeCategories)...)
	rf = append(rf, OneHot(rec.PairCode, domain.PairCategories)...)
	rf = append(rf, OneHot(rec.PartOfDay, domain.PartOfDayCategories)...)

	return rf, rf.Clone()
}

// OneHot encodes value against an ordered category list. A value outside
// the list yields all zeros.
func OneHot(value string, categories []string) []float64 {
	out := make([]float64, len(categories))
	for i, c := range categories {
		if value == c {
			out[i] = 1
		}
	}
	return out
}

// Contains reports whether value is one of categories (exact match).
func Contains(categories []string, value string) bool {
	for _, c := range categories {
		if c == value {
			return true
		}
	}
	return false
}
