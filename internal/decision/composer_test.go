package decision

import (
	"context"
	"reflect"
	"testing"

	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/ensemble"
	"github.com/opensource-finance/merlin/internal/factors"
)

func newComposer(t *testing.T) *Composer {
	t.Helper()
	engine, err := factors.NewEngine(factors.DefaultRules())
	if err != nil {
		t.Fatalf("failed to create factor engine: %v", err)
	}
	return NewComposer(engine)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		p    float64
		want domain.Status
	}{
		{0, domain.StatusNormal},
		{0.3, domain.StatusNormal},
		{0.30001, domain.StatusSuspicious},
		{0.5, domain.StatusSuspicious},
		{0.50001, domain.StatusFraud},
		{1, domain.StatusFraud},
	}

	for _, tc := range tests {
		if got := Status(tc.p); got != tc.want {
			t.Errorf("Status(%v) = %s, want %s", tc.p, got, tc.want)
		}
	}
}

func TestRiskScore(t *testing.T) {
	tests := []struct {
		p    float64
		want int
	}{
		{0, 0},
		{0.62, 62},
		{0.125, 12}, // half to even
		{0.135, 14},
		{0.999, 100},
		{1, 100},
		{1.2, 100},
		{-0.1, 0},
	}

	for _, tc := range tests {
		if got := RiskScore(tc.p); got != tc.want {
			t.Errorf("RiskScore(%v) = %d, want %d", tc.p, got, tc.want)
		}
	}
}

func TestCompose(t *testing.T) {
	c := newComposer(t)
	ctx := context.Background()

	t.Run("RFOnlyExample", func(t *testing.T) {
		rec := &domain.TransactionRecord{Amount: 800, Day: 15, Type: "TRANSFER", PairCode: "cc", PartOfDay: "night"}
		out := &ensemble.Outcome{
			Probability: 0.62,
			Method:      domain.MethodRFOnly,
			Predictions: domain.ModelPredictions{"rf": 0.62},
		}

		res, err := c.Compose(ctx, rec, out)
		if err != nil {
			t.Fatalf("Compose failed: %v", err)
		}
		if !res.IsFraud || res.Status != domain.StatusFraud || res.RiskScore != 62 {
			t.Errorf("unexpected decision: %+v", res)
		}
		want := []string{"Unusual transaction time", "Unusual transaction pattern", "Large transfer amount"}
		if !reflect.DeepEqual(res.Factors, want) {
			t.Errorf("expected factors %v, got %v", want, res.Factors)
		}
		if res.PredictionMethod != domain.MethodRFOnly {
			t.Errorf("expected rf_only, got %s", res.PredictionMethod)
		}
		if res.Amount != 800 || res.Day != 15 || res.Type != "TRANSFER" || res.PairCode != "cc" || res.PartOfDay != "night" {
			t.Errorf("input fields not echoed: %+v", res)
		}
	})

	t.Run("NormalWithoutFactors", func(t *testing.T) {
		rec := &domain.TransactionRecord{Amount: 20, Day: 2, Type: "PAYMENT", PairCode: "cm", PartOfDay: "morning"}
		res, err := c.Compose(ctx, rec, &ensemble.Outcome{Probability: 0.05, Method: domain.MethodRFOnly})
		if err != nil {
			t.Fatalf("Compose failed: %v", err)
		}
		if res.IsFraud || res.Status != domain.StatusNormal || res.RiskScore != 5 {
			t.Errorf("unexpected decision: %+v", res)
		}
		if res.Factors == nil || len(res.Factors) != 0 {
			t.Errorf("expected empty factors, got %#v", res.Factors)
		}
		if res.ModelPredictions == nil {
			t.Error("model predictions must not be nil")
		}
	})
}
