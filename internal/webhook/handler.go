package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	errors "github.com/jbalwikobra/storefront/internal"
	"github.com/jbalwikobra/storefront/internal/core/datamodel/order"
	"github.com/jbalwikobra/storefront/internal/core/events"
	"github.com/jbalwikobra/storefront/internal/metrics"
	"github.com/jbalwikobra/storefront/internal/reconciler"
	"github.com/jbalwikobra/storefront/internal/transport"
)

// ReconcilerAPI is the slice of the reconciler the receiver needs.
type ReconcilerAPI interface {
	Reconcile(ctx context.Context, ev reconciler.PaymentEvent) (*reconciler.Result, error)
}

type Handler struct {
	*transport.BaseHandler
	reconciler    ReconcilerAPI
	eventBus      *events.EventBus
	callbackToken string
	recheckDelay  time.Duration
	logger        *slog.Logger
}

func NewHandler(baseHandler *transport.BaseHandler, rec ReconcilerAPI, eventBus *events.EventBus, callbackToken string, recheckDelay time.Duration, logger *slog.Logger) *Handler {
	if recheckDelay <= 0 {
		recheckDelay = 250 * time.Millisecond
	}
	return &Handler{
		BaseHandler:   baseHandler,
		reconciler:    rec,
		eventBus:      eventBus,
		callbackToken: callbackToken,
		recheckDelay:  recheckDelay,
		logger:        logger,
	}
}

// HandlePaymentCallback processes one gateway callback. The response is
// bounded by reconciliation alone; channel dispatch happens off the request
// path via the event bus. Status codes steer the gateway's retry policy:
// 4xx means never retry, 5xx means the state was not applied and a retry is
// welcome, 2xx acknowledges everything else including no-ops.
func (h *Handler) HandlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	if h.callbackToken != "" {
		token := r.Header.Get("X-Callback-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.callbackToken)) != 1 {
			h.logger.Error("payment callback with invalid token")
			metrics.WebhookEventsTotal.WithLabelValues("rejected").Inc()
			h.HandleError(w, errors.ErrInvalidCallbackToken)
			return
		}
	}

	var req PaymentCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("invalid payment callback request", "error", err)
		metrics.WebhookEventsTotal.WithLabelValues("invalid").Inc()
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeInvalidCallback))
		return
	}

	h.logger.Info("received payment callback",
		"external_id", req.ExternalID,
		"status", req.Status,
		"gateway_event_id", req.GatewayEventID,
		"amount", req.Amount)

	if appErr := req.Validate(); appErr != nil {
		h.logger.Error("payment callback failed validation",
			"external_id", req.ExternalID,
			"error", appErr)
		metrics.WebhookEventsTotal.WithLabelValues("invalid").Inc()
		h.HandleError(w, appErr)
		return
	}

	ev := req.Normalize(time.Now().UTC())

	start := time.Now()
	result, err := h.reconcile(r.Context(), ev)
	metrics.ReconcileDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		h.logger.Error("failed to reconcile payment callback",
			"error", err,
			"external_id", req.ExternalID,
			"status", req.Status)
		metrics.WebhookEventsTotal.WithLabelValues("storage_error").Inc()
		h.HandleServiceError(w, err)
		return
	}

	metrics.WebhookEventsTotal.WithLabelValues(string(result.Outcome)).Inc()

	if result.Outcome == reconciler.OutcomeApplied {
		h.publishTransition(result)
	}

	h.WriteJSON(w, http.StatusOK, PaymentCallbackResponse{
		Status:  "ok",
		Outcome: string(result.Outcome),
	})
}

// reconcile runs the reconciler once, and on NotFound re-checks exactly
// once after a short delay. Order creation commits in another flow; the
// callback can win that race by milliseconds.
func (h *Handler) reconcile(ctx context.Context, ev reconciler.PaymentEvent) (*reconciler.Result, error) {
	result, err := h.reconciler.Reconcile(ctx, ev)
	if err != nil {
		return nil, err
	}

	if result.Outcome != reconciler.OutcomeNotFound {
		return result, nil
	}

	select {
	case <-time.After(h.recheckDelay):
	case <-ctx.Done():
		return result, nil
	}

	result, err = h.reconciler.Reconcile(ctx, ev)
	if err != nil {
		return nil, err
	}

	if result.Outcome == reconciler.OutcomeNotFound {
		h.logger.Warn("callback for unknown external id",
			"external_id", ev.ExternalID,
			"raw_status", ev.RawStatus,
			"gateway_event_id", ev.GatewayEventID)
	}

	return result, nil
}

func (h *Handler) publishTransition(result *reconciler.Result) {
	o := result.Order

	event := events.NewOrderTransitionAppliedEvent(
		o.ID,
		o.ExternalID,
		result.PreviousStatus,
		result.NewStatus,
		o.OrderType,
		o.AmountIDR,
		o.CustomerName,
		o.ProductName,
	)

	// Background context on purpose: dispatch must outlive this request.
	h.eventBus.Publish(context.Background(), event)

	if result.NewStatus == order.StatusPaid {
		h.logger.Info("published paid transition event",
			"event_id", event.EventID(),
			"order_id", o.ID)
	}
}
