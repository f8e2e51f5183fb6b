// Package worker serves predictions over the event bus.
package worker

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/opensource-finance/merlin/internal/boundary"
	"github.com/opensource-finance/merlin/internal/domain"
)

// Runner predicts one raw input. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, raw []byte) (*domain.PredictionResult, error)
}

// Worker answers prediction requests from the EventBus and fans out
// results to the prediction and alert topics.
type Worker struct {
	bus    domain.EventBus
	runner Runner

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new bus worker.
func NewWorker(bus domain.EventBus, runner Runner) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		runner: runner,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to prediction requests.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicPredictRequest, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started", "topic", domain.TopicPredictRequest)
	return nil
}

// handleMessage runs one prediction. The reply carries either the result
// or the error object, exactly as the CLI would print it.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	res, runErr := w.runner.Run(ctx, msg.Payload)

	var body bytes.Buffer
	var err error
	if runErr != nil {
		err = boundary.WriteError(&body, runErr)
	} else {
		err = boundary.WriteResult(&body, res)
	}
	if err != nil {
		slog.Error("failed to encode reply", "message_id", msg.ID, "error", err)
		return err
	}
	payload := bytes.TrimRight(body.Bytes(), "\n")

	if msg.ReplyTo != "" {
		if err := w.bus.Reply(ctx, msg, payload); err != nil {
			slog.Error("failed to reply",
				"message_id", msg.ID,
				"error", err,
			)
		}
	}

	if runErr != nil {
		slog.Warn("prediction request failed",
			"message_id", msg.ID,
			"kind", domain.KindOf(runErr),
			"error", runErr,
		)
		return nil
	}

	if err := w.bus.Publish(ctx, domain.TopicPrediction, payload); err != nil {
		slog.Error("failed to publish prediction",
			"message_id", msg.ID,
			"error", err,
		)
	}

	if res.IsFraud {
		if err := w.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"message_id", msg.ID,
				"error", err,
			)
		}
	}

	slog.Info("prediction request processed",
		"message_id", msg.ID,
		"status", res.Status,
		"method", res.PredictionMethod,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
