package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/opensource-finance/merlin/internal/bus"
	"github.com/opensource-finance/merlin/internal/domain"
)

type fakeRunner struct {
	res *domain.PredictionResult
	err error
}

func (f *fakeRunner) Run(ctx context.Context, raw []byte) (*domain.PredictionResult, error) {
	return f.res, f.err
}

func fraudResult() *domain.PredictionResult {
	return &domain.PredictionResult{
		IsFraud:          true,
		Probability:      0.62,
		Status:           domain.StatusFraud,
		RiskScore:        62,
		Factors:          []string{},
		PredictionMethod: domain.MethodRFOnly,
		ModelPredictions: domain.ModelPredictions{"rf": 0.62},
	}
}

func TestWorker(t *testing.T) {
	ctx := context.Background()

	t.Run("StartAndStop", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		w := NewWorker(eventBus, &fakeRunner{res: fraudResult()})
		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 1 || stats.Topics[0] != domain.TopicPredictRequest {
			t.Errorf("unexpected stats: %+v", stats)
		}
		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ReplyAndFanOut", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		predictions := make(chan []byte, 1)
		alerts := make(chan []byte, 1)
		eventBus.Subscribe(ctx, domain.TopicPrediction, func(ctx context.Context, msg *domain.Message) error {
			predictions <- msg.Payload
			return nil
		})
		eventBus.Subscribe(ctx, domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			alerts <- msg.Payload
			return nil
		})

		w := NewWorker(eventBus, &fakeRunner{res: fraudResult()})
		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		reply, err := eventBus.Request(reqCtx, domain.TopicPredictRequest, []byte(`{}`))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}

		var res domain.PredictionResult
		if err := json.Unmarshal(reply, &res); err != nil {
			t.Fatalf("reply is not a result: %v", err)
		}
		if !res.IsFraud || res.PredictionMethod != domain.MethodRFOnly {
			t.Errorf("unexpected reply: %+v", res)
		}

		for name, ch := range map[string]chan []byte{"prediction": predictions, "alert": alerts} {
			select {
			case <-ch:
			case <-time.After(time.Second):
				t.Errorf("expected a message on %s", name)
			}
		}
	})

	t.Run("ErrorReplyNotPublished", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		predictions := make(chan []byte, 1)
		eventBus.Subscribe(ctx, domain.TopicPrediction, func(ctx context.Context, msg *domain.Message) error {
			predictions <- msg.Payload
			return nil
		})

		runErr := domain.NewError(domain.KindInputFieldInvalid, "Day must be an integer between 1 and 31")
		w := NewWorker(eventBus, &fakeRunner{err: runErr})
		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		reply, err := eventBus.Request(reqCtx, domain.TopicPredictRequest, []byte(`{"day": 35}`))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		if string(reply) != `{"error":"Day must be an integer between 1 and 31"}` {
			t.Errorf("unexpected reply: %s", reply)
		}

		select {
		case <-predictions:
			t.Error("failed predictions must not be published")
		case <-time.After(50 * time.Millisecond):
		}
	})
}
