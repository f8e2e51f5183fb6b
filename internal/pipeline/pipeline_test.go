package pipeline

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/ensemble"
)

type constPredictor float64

func (c constPredictor) Predict(ctx context.Context, x []float64) (float64, error) {
	return float64(c), nil
}

type passThrough struct{}

func (passThrough) Transform(ctx context.Context, x []float64) ([]float64, error) {
	return x, nil
}

type mapStore struct {
	items map[string]any
	panic bool
}

func (s *mapStore) Predictor(ctx context.Context, name string) (domain.Predictor, error) {
	if s.panic {
		panic("store exploded")
	}
	v, ok := s.items[name].(domain.Predictor)
	if !ok {
		return nil, domain.ErrModelNotFound
	}
	return v, nil
}

func (s *mapStore) Transformer(ctx context.Context, name string) (domain.Transformer, error) {
	v, ok := s.items[name].(domain.Transformer)
	if !ok {
		return nil, domain.ErrModelNotFound
	}
	return v, nil
}

func rfOnlyStore(p float64) *mapStore {
	return &mapStore{items: map[string]any{
		domain.ArtifactRFModel:  constPredictor(p),
		domain.ArtifactRFScaler: passThrough{},
	}}
}

func newPipeline(t *testing.T, store domain.ModelStore) *Pipeline {
	t.Helper()
	p, err := New(NewLoader(store, ensemble.ResolveOptions{NeuralEnabled: true}), Options{NeuralTimeout: time.Second})
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	return p
}

const validInput = `{"amount": 800, "day": 15, "type": "TRANSFER", "transaction_pair_code": "cc", "part_of_the_day": "night"}`

func TestRun(t *testing.T) {
	p := newPipeline(t, rfOnlyStore(0.62))

	res, err := p.Run(context.Background(), []byte(validInput))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !res.IsFraud || res.Probability != 0.62 || res.Status != domain.StatusFraud || res.RiskScore != 62 {
		t.Errorf("unexpected decision: %+v", res)
	}
	if res.PredictionMethod != domain.MethodRFOnly {
		t.Errorf("expected rf_only, got %s", res.PredictionMethod)
	}
	if !reflect.DeepEqual(res.ModelPredictions, domain.ModelPredictions{"rf": 0.62}) {
		t.Errorf("unexpected model predictions: %v", res.ModelPredictions)
	}
	want := []string{"Unusual transaction time", "Unusual transaction pattern", "Large transfer amount"}
	if !reflect.DeepEqual(res.Factors, want) {
		t.Errorf("expected factors %v, got %v", want, res.Factors)
	}
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("InputErrorBeforeModels", func(t *testing.T) {
		p := newPipeline(t, &mapStore{})
		_, err := p.Run(ctx, []byte(`{"amount": 10, "day": 35, "type": "PAYMENT", "transaction_pair_code": "cc", "part_of_the_day": "morning"}`))
		if domain.KindOf(err) != domain.KindInputFieldInvalid {
			t.Errorf("expected InputFieldInvalid, got %v", err)
		}
	})

	t.Run("EmptyInput", func(t *testing.T) {
		p := newPipeline(t, rfOnlyStore(0.1))
		_, err := p.Run(ctx, nil)
		if domain.KindOf(err) != domain.KindInputEmpty {
			t.Errorf("expected InputEmpty, got %v", err)
		}
	})

	t.Run("MissingCriticalModel", func(t *testing.T) {
		p := newPipeline(t, &mapStore{})
		_, err := p.Run(ctx, []byte(validInput))
		if domain.KindOf(err) != domain.KindMissingCriticalModel {
			t.Errorf("expected MissingCriticalModel, got %v", err)
		}
	})

	t.Run("PanicIsInternal", func(t *testing.T) {
		p := newPipeline(t, &mapStore{panic: true})
		_, err := p.Run(ctx, []byte(validInput))
		if domain.KindOf(err) != domain.KindInternalUnexpected {
			t.Fatalf("expected InternalUnexpected, got %v", err)
		}
		if err.Error() != "store exploded" {
			t.Errorf("unexpected message: %s", err.Error())
		}
		if de := err.(*domain.Error); de.Stack == "" {
			t.Error("expected a stack trace")
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("DefaultRulesCompile", func(t *testing.T) {
		first := newPipeline(t, rfOnlyStore(0.1))
		second := newPipeline(t, rfOnlyStore(0.1))
		if first.composer == nil || second.composer == nil {
			t.Fatal("expected a composer")
		}
	})

	t.Run("BadRulesFailConstruction", func(t *testing.T) {
		loader := NewLoader(rfOnlyStore(0.1), ensemble.ResolveOptions{})
		_, err := New(loader, Options{FactorRules: []domain.FactorRule{
			{ID: "bad", Expression: "amount >", Enabled: true},
		}})
		if err == nil {
			t.Error("expected error for a rule that does not compile")
		}
	})

	t.Run("CustomRules", func(t *testing.T) {
		loader := NewLoader(rfOnlyStore(0.62), ensemble.ResolveOptions{})
		p, err := New(loader, Options{NeuralTimeout: time.Second, FactorRules: []domain.FactorRule{
			{ID: "transfer", Expression: `tx_type == "TRANSFER"`, Factor: "Transfer", Enabled: true},
		}})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		res, err := p.Run(context.Background(), []byte(validInput))
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if !reflect.DeepEqual(res.Factors, []string{"Transfer"}) {
			t.Errorf("expected [Transfer], got %v", res.Factors)
		}
	})
}

func TestLoader(t *testing.T) {
	ctx := context.Background()
	store := &mapStore{items: map[string]any{}}
	loader := NewLoader(store, ensemble.ResolveOptions{})

	if _, err := loader.Models(ctx); err == nil {
		t.Fatal("expected error with no models")
	}
	if loader.Current() != nil {
		t.Error("failed resolution must not be cached")
	}

	store.items = rfOnlyStore(0.2).items
	first, err := loader.Models(ctx)
	if err != nil {
		t.Fatalf("Models failed: %v", err)
	}
	if again, _ := loader.Models(ctx); again != first {
		t.Error("models must be resolved once")
	}

	reloaded, err := loader.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if reloaded == first || loader.Current() != reloaded {
		t.Error("reload must swap in new models")
	}

	store.items = map[string]any{}
	if _, err := loader.Reload(ctx); err == nil {
		t.Fatal("expected reload error")
	}
	if loader.Current() != reloaded {
		t.Error("failed reload must keep previous models")
	}
}
