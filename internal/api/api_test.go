package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/ensemble"
	"github.com/opensource-finance/merlin/internal/pipeline"
)

type constPredictor float64

func (c constPredictor) Predict(ctx context.Context, x []float64) (float64, error) {
	return float64(c), nil
}

type passThrough struct{}

func (passThrough) Transform(ctx context.Context, x []float64) ([]float64, error) {
	return x, nil
}

// swapStore serves whatever items are currently set.
type swapStore struct {
	mu    sync.Mutex
	items map[string]any
}

func (s *swapStore) set(items map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
}

func (s *swapStore) Predictor(ctx context.Context, name string) (domain.Predictor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[name].(domain.Predictor)
	if !ok {
		return nil, domain.ErrModelNotFound
	}
	return v, nil
}

func (s *swapStore) Transformer(ctx context.Context, name string) (domain.Transformer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[name].(domain.Transformer)
	if !ok {
		return nil, domain.ErrModelNotFound
	}
	return v, nil
}

func rfOnly(p float64) map[string]any {
	return map[string]any{
		domain.ArtifactRFModel:  constPredictor(p),
		domain.ArtifactRFScaler: passThrough{},
	}
}

func createTestServer(t *testing.T, store domain.ModelStore, cfg domain.ServerConfig) *Server {
	t.Helper()
	loader := pipeline.NewLoader(store, ensemble.ResolveOptions{NeuralEnabled: true})
	p, err := pipeline.New(loader, pipeline.Options{NeuralTimeout: time.Second})
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	return NewServer(cfg, p, nil, "test-v1")
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

const validBody = `{"amount": 800, "day": 15, "type": "TRANSFER", "transaction_pair_code": "cc", "part_of_the_day": "night"}`

func TestPredictEndpoint(t *testing.T) {
	server := createTestServer(t, &swapStore{items: rfOnly(0.62)}, domain.ServerConfig{})

	t.Run("Success", func(t *testing.T) {
		rr := do(server, http.MethodPost, "/predict", validBody)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var res domain.PredictionResult
		if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !res.IsFraud || res.RiskScore != 62 || res.PredictionMethod != domain.MethodRFOnly {
			t.Errorf("unexpected result: %+v", res)
		}
		if rr.Header().Get(RequestIDHeader) == "" {
			t.Error("expected a request id header")
		}
	})

	t.Run("RequestIDIsEchoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(validBody))
		req.Header.Set(RequestIDHeader, "req-123")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if got := rr.Header().Get(RequestIDHeader); got != "req-123" {
			t.Errorf("expected req-123, got %q", got)
		}
	})

	inputErrors := []struct {
		name string
		body string
		want string
	}{
		{"Empty", "", "Empty input received"},
		{"Malformed", "{", "Invalid JSON input"},
		{"Missing", `{"amount": 1}`, "Missing field: day"},
		{"Invalid", `{"amount": 10, "day": 35, "type": "PAYMENT", "transaction_pair_code": "cc", "part_of_the_day": "morning"}`, "Day must be an integer between 1 and 31"},
	}
	for _, tc := range inputErrors {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(server, http.MethodPost, "/predict", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
			}
			var body map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if !strings.HasPrefix(body["error"], tc.want) {
				t.Errorf("expected error starting with %q, got %q", tc.want, body["error"])
			}
		})
	}
}

func TestPredictWithoutModels(t *testing.T) {
	server := createTestServer(t, &swapStore{}, domain.ServerConfig{})

	rr := do(server, http.MethodPost, "/predict", validBody)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	var body map[string]string
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body["error"] != "Model file not found: random_forest_model" {
		t.Errorf("unexpected error: %q", body["error"])
	}
}

func TestHealthAndReady(t *testing.T) {
	store := &swapStore{}
	server := createTestServer(t, store, domain.ServerConfig{})

	t.Run("Health", func(t *testing.T) {
		rr := do(server, http.MethodGet, "/health", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var body map[string]string
		json.Unmarshal(rr.Body.Bytes(), &body)
		if body["status"] != "healthy" || body["version"] != "test-v1" {
			t.Errorf("unexpected body: %v", body)
		}
	})

	t.Run("NotReadyWithoutModels", func(t *testing.T) {
		rr := do(server, http.MethodGet, "/ready", "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rr.Code)
		}
	})

	t.Run("ReadyOnceModelsAppear", func(t *testing.T) {
		store.set(rfOnly(0.1))
		rr := do(server, http.MethodGet, "/ready", "")
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestModelsEndpoints(t *testing.T) {
	store := &swapStore{items: rfOnly(0.1)}
	server := createTestServer(t, store, domain.ServerConfig{})

	rr := do(server, http.MethodGet, "/models", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp ModelsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Tier != ensemble.TierSingle || !resp.Availability["rf"] || resp.Availability["xgb"] {
		t.Errorf("unexpected models response: %+v", resp)
	}

	t.Run("ReloadPicksUpNewArtifacts", func(t *testing.T) {
		items := rfOnly(0.1)
		items[domain.ArtifactXGBModel] = constPredictor(0.2)
		items[domain.ArtifactXGBScaler] = passThrough{}
		store.set(items)

		rr := do(server, http.MethodPost, "/models/reload", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp ModelsResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Tier != ensemble.TierDual {
			t.Errorf("expected DUAL after reload, got %s", resp.Tier)
		}
	})

	t.Run("FailedReloadKeepsModels", func(t *testing.T) {
		store.set(nil)

		rr := do(server, http.MethodPost, "/models/reload", "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status 503, got %d", rr.Code)
		}

		rr = do(server, http.MethodPost, "/predict", validBody)
		if rr.Code != http.StatusOK {
			t.Errorf("expected predictions to keep working, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestRateLimit(t *testing.T) {
	server := createTestServer(t, &swapStore{items: rfOnly(0.1)}, domain.ServerConfig{RateLimit: 0.001, RateBurst: 1})

	if rr := do(server, http.MethodPost, "/predict", validBody); rr.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rr.Code)
	}
	if rr := do(server, http.MethodPost, "/predict", validBody); rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", rr.Code)
	}
	if rr := do(server, http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Errorf("expected probes to bypass the limit, got %d", rr.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind domain.ErrorKind
		want int
	}{
		{domain.KindInputEmpty, http.StatusBadRequest},
		{domain.KindInputFieldInvalid, http.StatusBadRequest},
		{domain.KindMissingCriticalModel, http.StatusServiceUnavailable},
		{domain.KindNoModelsAvailable, http.StatusServiceUnavailable},
		{domain.KindInternalUnexpected, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			if got := statusFor(domain.NewError(tc.kind, "x")); got != tc.want {
				t.Errorf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	server := createTestServer(t, &swapStore{}, domain.ServerConfig{})

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Errorf("unexpected allow origin: %q", got)
	}
}
