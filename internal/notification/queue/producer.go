package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	notificationsvc "github.com/jbalwikobra/storefront/internal/notification"
	"github.com/segmentio/kafka-go"
)

// Producer publishes dispatch requests to the queue so delivery work runs
// on worker instances instead of the webhook-serving process. Messages are
// keyed by order ID: requests for one order land on one partition and keep
// their relative order.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(brokers []string, topic string, logger *slog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}

	return &Producer{
		writer: writer,
		logger: logger,
	}
}

func (p *Producer) Enqueue(ctx context.Context, req notificationsvc.DispatchRequest) error {
	value, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal dispatch request: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(req.OrderID, 10)),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write dispatch message: %w", err)
	}

	p.logger.Info("dispatch request enqueued",
		"order_id", req.OrderID,
		"category", req.Category,
		"target_status", req.TargetStatus)
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
