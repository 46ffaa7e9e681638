package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeOrderTransitionApplied = "order.transition.applied"
)

// OrderTransitionAppliedEvent fires once per successful status transition.
// Only Applied reconciliation outcomes produce it; NoOp, NotFound and
// unknown-status callbacks never do.
type OrderTransitionAppliedEvent struct {
	BaseEvent
	OrderID        int64  `json:"order_id"`
	ExternalID     string `json:"external_id"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	OrderType      string `json:"order_type"`
	AmountIDR      int64  `json:"amount_idr"`
	CustomerName   string `json:"customer_name"`
	ProductName    string `json:"product_name"`
}

func NewOrderTransitionAppliedEvent(orderID int64, externalID, previousStatus, newStatus, orderType string, amountIDR int64, customerName, productName string) *OrderTransitionAppliedEvent {
	return &OrderTransitionAppliedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeOrderTransitionApplied,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"order_id":        orderID,
				"external_id":     externalID,
				"previous_status": previousStatus,
				"new_status":      newStatus,
				"order_type":      orderType,
				"amount_idr":      amountIDR,
			},
		},
		OrderID:        orderID,
		ExternalID:     externalID,
		PreviousStatus: previousStatus,
		NewStatus:      newStatus,
		OrderType:      orderType,
		AmountIDR:      amountIDR,
		CustomerName:   customerName,
		ProductName:    productName,
	}
}
