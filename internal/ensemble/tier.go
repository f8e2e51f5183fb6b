package ensemble

import "github.com/opensource-finance/merlin/internal/domain"

// Tier is the ensemble configuration a request starts from.
type Tier string

const (
	TierFull   Tier = "FULL"
	TierDual   Tier = "DUAL"
	TierSingle Tier = "SINGLE"
	TierNone   Tier = "NONE"
)

// SelectTier picks the starting tier from model availability.
func SelectTier(av domain.Availability) Tier {
	switch {
	case av.XGB && av.RF && av.CNN:
		return TierFull
	case av.XGB && av.RF:
		return TierDual
	case av.RF:
		return TierSingle
	default:
		return TierNone
	}
}
