package webhook

import (
	"fmt"
	"time"

	errors "github.com/jbalwikobra/storefront/internal"
	"github.com/jbalwikobra/storefront/internal/core/common/validation"
	"github.com/jbalwikobra/storefront/internal/core/datamodel/order"
	"github.com/jbalwikobra/storefront/internal/reconciler"
)

// PaymentCallbackRequest is the raw payload the gateway posts. Only
// external_id and status are required; everything else is advisory.
type PaymentCallbackRequest struct {
	ExternalID     string `json:"external_id"`
	Status         string `json:"status"`
	GatewayEventID string `json:"gateway_event_id,omitempty"`
	Amount         int64  `json:"amount,omitempty"`
	FailureReason  string `json:"failure_reason,omitempty"`
}

type PaymentCallbackResponse struct {
	Status  string `json:"status"`
	Outcome string `json:"outcome"`
	Message string `json:"message,omitempty"`
}

// Validate rejects structurally invalid payloads. These are the only
// callbacks answered with a 4xx, because retrying a malformed payload will
// never succeed.
func (r *PaymentCallbackRequest) Validate() *errors.AppError {
	validator := validation.NewValidator()

	validator.Field("external_id", r.ExternalID).Required().MaxLength(128)
	validator.Field("status", r.Status).Required()

	return validator.Validate()
}

// gatewayStatusMap translates the gateway's vocabulary into order statuses.
// Anything absent maps to StatusUnknown: accepted, logged, never applied.
var gatewayStatusMap = map[string]string{
	"PENDING":   order.StatusPending,
	"PAID":      order.StatusPaid,
	"COMPLETED": order.StatusCompleted,
	"EXPIRED":   order.StatusExpired,
	"FAILED":    order.StatusFailed,
	"REFUNDED":  order.StatusRefunded,
}

func MapGatewayStatus(s string) string {
	if mapped, ok := gatewayStatusMap[s]; ok {
		return mapped
	}
	return order.StatusUnknown
}

// Normalize builds the ephemeral payment event. When the gateway supplies
// no event id, one is synthesized from external id, reported status and a
// one-minute receipt bucket so short-window retries share an identity.
func (r *PaymentCallbackRequest) Normalize(receivedAt time.Time) reconciler.PaymentEvent {
	eventID := r.GatewayEventID
	if eventID == "" {
		eventID = fmt.Sprintf("%s:%s:%d", r.ExternalID, r.Status, receivedAt.Truncate(time.Minute).Unix())
	}

	return reconciler.PaymentEvent{
		ExternalID:     r.ExternalID,
		GatewayEventID: eventID,
		ReportedStatus: MapGatewayStatus(r.Status),
		RawStatus:      r.Status,
		ReportedAmount: r.Amount,
		ReceivedAt:     receivedAt,
	}
}
