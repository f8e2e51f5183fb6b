// Package domain defines the core interfaces and types for Merlin.
package domain

// TransactionRecord is a validated transaction submitted for scoring.
// It is built only by the boundary decoder and never mutated afterwards.
type TransactionRecord struct {
	Amount    float64 `json:"amount"`
	Day       int     `json:"day"`
	Type      string  `json:"type"`
	PairCode  string  `json:"transaction_pair_code"`
	PartOfDay string  `json:"part_of_the_day"`
}

// Transaction types.
const (
	TypeCashOut  = "CASH_OUT"
	TypeTransfer = "TRANSFER"
	TypePayment  = "PAYMENT"
	TypeCashIn   = "CASH_IN"
	TypeDebit    = "DEBIT"
)

// Transaction pair codes (customer-to-customer, customer-to-merchant).
const (
	PairCustomer = "cc"
	PairMerchant = "cm"
)

// Parts of the day.
const (
	PartMorning   = "morning"
	PartAfternoon = "afternoon"
	PartEvening   = "evening"
	PartNight     = "night"
)

// Category lists in training order. The encoder relies on this order;
// changing it invalidates every trained artifact.
var (
	TypeCategories      = []string{TypeCashOut, TypeTransfer, TypePayment, TypeCashIn, TypeDebit}
	PairCategories      = []string{PairCustomer, PairMerchant}
	PartOfDayCategories = []string{PartMorning, PartAfternoon, PartEvening, PartNight}
)

// Input field names as they appear on the wire, in validation order.
const (
	FieldAmount    = "amount"
	FieldDay       = "day"
	FieldType      = "type"
	FieldPairCode  = "transaction_pair_code"
	FieldPartOfDay = "part_of_the_day"
)

// RequiredFields lists every input field in the order they are checked.
var RequiredFields = []string{FieldAmount, FieldDay, FieldType, FieldPairCode, FieldPartOfDay}

// FeatureVector is an ordered, fixed-length model input.
type FeatureVector []float64

// FeatureCount is the length of an encoded transaction:
// amount, day, 5 type slots, 2 pair slots, 4 part-of-day slots.
const FeatureCount = 13

// Clone returns an independent copy of the vector.
func (v FeatureVector) Clone() FeatureVector {
	out := make(FeatureVector, len(v))
	copy(out, v)
	return out
}
