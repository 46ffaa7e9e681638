package notification

import (
	"context"
	"log/slog"
	"time"
)

// RedeliveryWorker polls the delivery log for pending entries whose retry
// window has passed and runs them back through the dispatcher. It is the
// crash-recovery path: an entry claimed by a process that died keeps its
// payload in the log, so nothing is lost between restarts.
type RedeliveryWorker struct {
	dispatcher *Dispatcher
	deliveries DeliveryRepository
	interval   time.Duration
	batchSize  int
	logger     *slog.Logger
}

func NewRedeliveryWorker(dispatcher *Dispatcher, deliveries DeliveryRepository, interval time.Duration, batchSize int, logger *slog.Logger) *RedeliveryWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &RedeliveryWorker{
		dispatcher: dispatcher,
		deliveries: deliveries,
		interval:   interval,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// Run blocks until the context is cancelled.
func (w *RedeliveryWorker) Run(ctx context.Context) error {
	w.logger.Info("redelivery worker started",
		"interval", w.interval.String(),
		"batch_size", w.batchSize)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("redelivery worker stopping")
			return nil
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				w.logger.Error("redelivery sweep failed", "error", err)
			}
		}
	}
}

func (w *RedeliveryWorker) sweep(ctx context.Context) error {
	entries, err := w.deliveries.ListDue(ctx, time.Now().UTC(), w.batchSize)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	w.logger.Info("resuming stalled deliveries", "count", len(entries))
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.dispatcher.ProcessEntry(ctx, entry); err != nil {
			w.logger.Error("redelivery attempt failed",
				"error", err,
				"delivery_id", entry.ID,
				"channel", entry.Channel)
		}
	}
	return nil
}
