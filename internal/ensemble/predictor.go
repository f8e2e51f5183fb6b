package ensemble

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Blend weights.
const (
	FullRFWeight  = 0.7
	FullXGBWeight = 0.2
	FullCNNWeight = 0.1

	PairRFWeight  = 0.8
	PairXGBWeight = 0.2
)

// DefaultNeuralTimeout bounds the cnn step when no timeout is configured.
const DefaultNeuralTimeout = 2 * time.Second

var tracer = otel.Tracer("merlin-ensemble")

// Predictor runs the tier state machine for a request.
type Predictor struct {
	NeuralTimeout time.Duration
}

// NewPredictor creates a predictor. A non-positive timeout uses
// DefaultNeuralTimeout.
func NewPredictor(neuralTimeout time.Duration) *Predictor {
	if neuralTimeout <= 0 {
		neuralTimeout = DefaultNeuralTimeout
	}
	return &Predictor{NeuralTimeout: neuralTimeout}
}

// Predict blends the available models into one probability. xgb and cnn
// failures demote the model and fall back; an rf failure leaves nothing to
// anchor a blend on and returns a NoModelsAvailable error.
func (p *Predictor) Predict(ctx context.Context, req *Request) (*Outcome, error) {
	tier := SelectTier(req.Availability)

	ctx, span := tracer.Start(ctx, "ensemble.predict",
		trace.WithAttributes(attribute.String("merlin.tier", string(tier))),
	)
	defer span.End()

	out := &Outcome{Tier: tier, Predictions: req.Predictions}

	switch tier {
	case TierFull:
		slog.Debug("using full ensemble (xgb + rf -> cnn)")

		xgb, _ := p.runXGB(ctx, req, out)
		rf, err := p.runRF(ctx, req, out)
		if err != nil {
			return nil, p.fail(span, err)
		}

		input := req.RF.Clone()
		if req.Availability.XGB {
			input = append(input, xgb, rf)
		} else {
			input = append(input, rf)
		}

		cnn, err := p.runCNN(ctx, req, out, input)
		switch {
		case err == nil:
			out.Probability = FullRFWeight*rf + FullXGBWeight*xgb + FullCNNWeight*cnn
			out.Method = domain.MethodRFMajorEnsemble
		case req.Availability.XGB:
			out.Probability = PairRFWeight*rf + PairXGBWeight*xgb
			out.Method = domain.MethodRFXGBEnsemble
		default:
			out.Probability = rf
			out.Method = domain.MethodRFOnlyFallback
		}

	case TierDual:
		slog.Debug("using xgb + rf ensemble")

		rf, err := p.runRF(ctx, req, out)
		if err != nil {
			return nil, p.fail(span, err)
		}
		xgb, err := p.runXGB(ctx, req, out)
		if err == nil {
			out.Probability = PairRFWeight*rf + PairXGBWeight*xgb
			out.Method = domain.MethodRFMajorWeighted
		} else {
			out.Probability = rf
			out.Method = domain.MethodRFOnly
		}

	case TierSingle:
		slog.Debug("using random forest only")

		rf, err := p.runRF(ctx, req, out)
		if err != nil {
			return nil, p.fail(span, err)
		}
		out.Probability = rf
		out.Method = domain.MethodRFOnly

	default:
		return nil, p.fail(span, domain.ErrNoModelsAvailable)
	}

	span.SetAttributes(
		attribute.String("merlin.method", string(out.Method)),
		attribute.Float64("merlin.probability", out.Probability),
	)
	slog.Debug("ensemble prediction",
		"tier", tier,
		"method", out.Method,
		"probability", out.Probability,
		"predictions", out.Predictions,
	)
	return out, nil
}

func (p *Predictor) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return domain.WrapError(domain.KindNoModelsAvailable, err, "No valid models available for prediction")
}

// runXGB scales, optionally reduces and scores the xgb features. On
// failure xgb is demoted and 0 is returned.
func (p *Predictor) runXGB(ctx context.Context, req *Request, out *Outcome) (float64, error) {
	m := req.models
	prob, err := p.call(ctx, domain.ModelXGB, func(ctx context.Context) (float64, error) {
		x, err := m.XGBScaler.Transform(ctx, req.XGB)
		if err != nil {
			return 0, fmt.Errorf("scaler: %w", err)
		}
		if req.Availability.PCA {
			x, err = m.PCA.Transform(ctx, x)
			if err != nil {
				return 0, fmt.Errorf("pca: %w", err)
			}
		}
		return m.XGB.Predict(ctx, x)
	})
	if err != nil {
		slog.Warn("xgb prediction failed, falling back", "error", err)
		p.demote(req, out, domain.ModelXGB)
		return 0, err
	}
	req.Predictions[string(domain.ModelXGB)] = prob
	return prob, nil
}

func (p *Predictor) runRF(ctx context.Context, req *Request, out *Outcome) (float64, error) {
	m := req.models
	prob, err := p.call(ctx, domain.ModelRF, func(ctx context.Context) (float64, error) {
		x, err := m.RFScaler.Transform(ctx, req.RF)
		if err != nil {
			return 0, fmt.Errorf("scaler: %w", err)
		}
		return m.RF.Predict(ctx, x)
	})
	if err != nil {
		slog.Error("rf prediction failed", "error", err)
		p.demote(req, out, domain.ModelRF)
		return 0, fmt.Errorf("%w: random forest: %v", domain.ErrNoModelsAvailable, err)
	}
	req.Predictions[string(domain.ModelRF)] = prob
	return prob, nil
}

func (p *Predictor) runCNN(ctx context.Context, req *Request, out *Outcome, input []float64) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.NeuralTimeout)
	defer cancel()

	prob, err := p.call(ctx, domain.ModelCNN, func(ctx context.Context) (float64, error) {
		return req.models.CNN.Predict(ctx, input)
	})
	if err != nil {
		slog.Warn("cnn prediction failed, falling back to weighted ensemble", "error", err)
		p.demote(req, out, domain.ModelCNN)
		return 0, err
	}
	req.Predictions[string(domain.ModelCNN)] = prob
	return prob, nil
}

func (p *Predictor) demote(req *Request, out *Outcome, key domain.ModelKey) {
	req.Availability.Demote(key)
	out.Demoted = append(out.Demoted, key)
}

type callResult struct {
	prob float64
	err  error
}

// call runs one model step in its own span. Returned errors, panics,
// context expiry and probabilities outside [0,1] all count as failures.
func (p *Predictor) call(ctx context.Context, key domain.ModelKey, fn func(context.Context) (float64, error)) (float64, error) {
	ctx, span := tracer.Start(ctx, "ensemble.model",
		trace.WithAttributes(attribute.String("merlin.model", string(key))),
	)
	defer span.End()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		prob, err := fn(ctx)
		done <- callResult{prob: prob, err: err}
	}()

	var res callResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	if res.err == nil && (math.IsNaN(res.prob) || res.prob < 0 || res.prob > 1) {
		res.err = fmt.Errorf("probability %v outside [0,1]", res.prob)
	}

	if res.err != nil {
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
		span.SetAttributes(attribute.Bool("merlin.demoted", true))
		return 0, res.err
	}
	span.SetAttributes(attribute.Float64("merlin.probability", res.prob))
	return res.prob, nil
}
