package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jbalwikobra/storefront/internal/core/datamodel/notification"
	"github.com/jbalwikobra/storefront/internal/core/datamodel/order"
	"github.com/jbalwikobra/storefront/internal/core/events"
)

// Enqueuer hands a dispatch request to the queue for a worker to pick up.
// When nil, the event handler dispatches in-process instead.
type Enqueuer interface {
	Enqueue(ctx context.Context, req DispatchRequest) error
}

// EventHandler turns committed order transitions into notification
// dispatches. It sits behind the event bus so the webhook response never
// waits on channel delivery.
type EventHandler struct {
	composer   *Composer
	dispatcher *Dispatcher
	enqueuer   Enqueuer
	logger     *slog.Logger
}

func NewEventHandler(composer *Composer, dispatcher *Dispatcher, enqueuer Enqueuer, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		composer:   composer,
		dispatcher: dispatcher,
		enqueuer:   enqueuer,
		logger:     logger,
	}
}

func (h *EventHandler) RegisterEventHandlers(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeOrderTransitionApplied, h.HandleOrderTransitionApplied)
}

func (h *EventHandler) HandleOrderTransitionApplied(ctx context.Context, event events.Event) error {
	transition, ok := event.(*events.OrderTransitionAppliedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", event.EventType())
	}

	category := categoryForTransition(transition.NewStatus)
	if category == "" {
		h.logger.Debug("transition carries no notification",
			"order_id", transition.OrderID,
			"new_status", transition.NewStatus)
		return nil
	}

	msg := h.composer.Compose(category, OrderContext{
		OrderID:      transition.OrderID,
		CustomerName: transition.CustomerName,
		ProductName:  transition.ProductName,
		AmountIDR:    transition.AmountIDR,
		OrderType:    transition.OrderType,
	})

	req := DispatchRequest{
		Category:     msg.Category,
		Title:        msg.Title,
		Body:         msg.Body,
		OrderID:      transition.OrderID,
		OrderType:    transition.OrderType,
		TargetStatus: transition.NewStatus,
	}

	if h.enqueuer != nil {
		if err := h.enqueuer.Enqueue(ctx, req); err != nil {
			// Queue publish failed; deliver inline rather than drop the
			// notification.
			h.logger.Error("dispatch enqueue failed, falling back to inline dispatch",
				"error", err,
				"order_id", transition.OrderID)
			return h.dispatcher.Dispatch(ctx, req)
		}
		return nil
	}

	return h.dispatcher.Dispatch(ctx, req)
}

// categoryForTransition maps a committed target status to the notification
// category it triggers. Only paid transitions notify; the new-order and
// signup categories are produced by their own flows, not by payment
// callbacks.
func categoryForTransition(newStatus string) string {
	switch newStatus {
	case order.StatusPaid:
		return notification.CategoryPaidOrder
	}
	return ""
}
