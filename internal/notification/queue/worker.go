package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/jbalwikobra/storefront/internal/metrics"
	notificationsvc "github.com/jbalwikobra/storefront/internal/notification"
	"github.com/segmentio/kafka-go"
)

// Worker consumes queued dispatch requests and runs them through the
// dispatcher. Offsets are committed only after the dispatcher has recorded
// the outcome, so a crash mid-delivery replays the message; the delivery
// log's dedup key makes the replay harmless.
type Worker struct {
	reader     *kafka.Reader
	dispatcher *notificationsvc.Dispatcher
	logger     *slog.Logger
}

func NewWorker(brokers []string, topic, groupID string, dispatcher *notificationsvc.Dispatcher, logger *slog.Logger) *Worker {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	return &Worker{
		reader:     reader,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("dispatch queue worker started")

	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				w.logger.Info("dispatch queue worker stopping")
				return nil
			}
			return err
		}

		metrics.DispatchQueueLag.Set(float64(w.reader.Lag()))

		var req notificationsvc.DispatchRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			// Malformed messages can never succeed; commit past them.
			w.logger.Error("discarding malformed dispatch message",
				"error", err,
				"offset", msg.Offset)
			if err := w.reader.CommitMessages(ctx, msg); err != nil {
				return err
			}
			continue
		}

		if err := w.dispatcher.Dispatch(ctx, req); err != nil {
			// The dispatcher has already persisted the failure state; the
			// redelivery worker owns what remains. Committing here keeps
			// one poisoned delivery from stalling the partition.
			w.logger.Error("dispatch from queue failed",
				"error", err,
				"order_id", req.OrderID)
		}

		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

func (w *Worker) Close() error {
	return w.reader.Close()
}
