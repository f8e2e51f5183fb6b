// Package pipeline runs one prediction end to end: decode, resolve models,
// encode, predict, compose. It is shared by the CLI, the HTTP API and the
// bus worker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/opensource-finance/merlin/internal/boundary"
	"github.com/opensource-finance/merlin/internal/decision"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/ensemble"
	"github.com/opensource-finance/merlin/internal/factors"
	"github.com/opensource-finance/merlin/internal/features"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("merlin-pipeline")

// Options configures a pipeline.
type Options struct {
	NeuralTimeout time.Duration

	// FactorRules defaults to factors.DefaultRules.
	FactorRules []domain.FactorRule
}

// Pipeline wires the prediction stages together.
type Pipeline struct {
	loader    *Loader
	predictor *ensemble.Predictor
	composer  *decision.Composer
}

// defaultEngine compiles the default factor rules once per process.
var defaultEngine = sync.OnceValues(func() (*factors.Engine, error) {
	return factors.NewEngine(factors.DefaultRules())
})

// New creates a pipeline. A rule set that does not compile is a startup
// error.
func New(loader *Loader, opts Options) (*Pipeline, error) {
	var (
		engine *factors.Engine
		err    error
	)
	if opts.FactorRules == nil {
		engine, err = defaultEngine()
	} else {
		engine, err = factors.NewEngine(opts.FactorRules)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create factor engine: %w", err)
	}

	return &Pipeline{
		loader:    loader,
		predictor: ensemble.NewPredictor(opts.NeuralTimeout),
		composer:  decision.NewComposer(engine),
	}, nil
}

// Loader returns the model loader.
func (p *Pipeline) Loader() *Loader {
	return p.loader
}

// Run predicts one raw input. Input is validated before models are
// touched, so an input error is reported even when models are missing.
// Every returned error is a *domain.Error.
func (p *Pipeline) Run(ctx context.Context, raw []byte) (res *domain.PredictionResult, err error) {
	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &domain.Error{
				Kind:  domain.KindInternalUnexpected,
				Err:   fmt.Errorf("%v", r),
				Stack: string(debug.Stack()),
			}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("merlin.error_kind", string(domain.KindOf(err))))
		}
	}()

	rec, err := boundary.DecodeRecord(raw)
	if err != nil {
		return nil, err
	}
	slog.Debug("input validated",
		"amount", rec.Amount,
		"day", rec.Day,
		"type", rec.Type,
		"transaction_pair_code", rec.PairCode,
		"part_of_the_day", rec.PartOfDay,
	)

	models, err := p.loader.Models(ctx)
	if err != nil {
		return nil, classify(err)
	}

	rf, xgb := features.Encode(rec)
	slog.Debug("features encoded", "features", []float64(rf))

	out, err := p.predictor.Predict(ctx, models.NewRequest(rf, xgb))
	if err != nil {
		return nil, classify(err)
	}
	span.SetAttributes(
		attribute.String("merlin.tier", string(out.Tier)),
		attribute.String("merlin.method", string(out.Method)),
	)

	res, err = p.composer.Compose(ctx, rec, out)
	if err != nil {
		return nil, classify(err)
	}

	slog.Info("prediction complete",
		"method", res.PredictionMethod,
		"probability", res.Probability,
		"status", res.Status,
		"model_predictions", res.ModelPredictions,
	)
	return res, nil
}

func classify(err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return &domain.Error{
		Kind:  domain.KindInternalUnexpected,
		Err:   err,
		Stack: string(debug.Stack()),
	}
}
