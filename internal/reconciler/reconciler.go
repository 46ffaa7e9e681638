package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	errors "github.com/jbalwikobra/storefront/internal"
	"github.com/jbalwikobra/storefront/internal/core/datamodel/order"
)

// PaymentEvent is the normalized form of one gateway callback. It is
// constructed per request and never persisted; its identity only matters as
// input to the dispatcher's dedup key.
type PaymentEvent struct {
	ExternalID     string
	GatewayEventID string
	ReportedStatus string
	RawStatus      string
	ReportedAmount int64
	ReceivedAt     time.Time
}

type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeNoOp     Outcome = "noop"
	OutcomeNotFound Outcome = "not_found"
)

// Result makes every reconciliation outcome explicit. Only Applied results
// carry an order snapshot and proceed to notification composition.
type Result struct {
	Outcome        Outcome
	Reason         string
	PreviousStatus string
	NewStatus      string
	Order          *order.Order
}

// OrderRepository is implemented by the storage layer. The conditional
// update must be atomic at the datastore: it succeeds only when the stored
// status still equals expected.
type OrderRepository interface {
	GetByExternalID(ctx context.Context, externalID string) (*order.Order, error)
	ConditionalUpdateStatus(ctx context.Context, id int64, expected, next string, paidAt *time.Time) (bool, error)
}

type Service struct {
	repo   OrderRepository
	logger *slog.Logger
}

func NewService(repo OrderRepository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// Reconcile applies one payment event to order state. Duplicate and
// out-of-order deliveries resolve to NoOp; a lost compare-and-swap race is
// also NoOp because the concurrent winner already applied the transition.
// A non-nil error means storage failed and the event was not applied.
func (s *Service) Reconcile(ctx context.Context, ev PaymentEvent) (*Result, error) {
	if ev.ReportedStatus == order.StatusUnknown {
		s.logger.Warn("ignoring callback with unknown status vocabulary",
			"external_id", ev.ExternalID,
			"raw_status", ev.RawStatus)
		return &Result{Outcome: OutcomeNoOp, Reason: "unknown status"}, nil
	}

	current, err := s.repo.GetByExternalID(ctx, ev.ExternalID)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok && appErr.Type == errors.ErrorTypeNotFound {
			return &Result{Outcome: OutcomeNotFound}, nil
		}
		return nil, errors.NewStorageError("failed to load order", err).
			WithDetails(map[string]string{"external_id": ev.ExternalID})
	}

	if ev.ReportedAmount != 0 && ev.ReportedAmount != current.AmountIDR {
		// Amount is immutable after creation; a mismatch is reported but
		// never applied.
		s.logger.Warn("gateway reported amount differs from order amount",
			"external_id", ev.ExternalID,
			"order_amount", current.AmountIDR,
			"reported_amount", ev.ReportedAmount)
	}

	target := ev.ReportedStatus
	if target == current.Status {
		return &Result{
			Outcome:        OutcomeNoOp,
			Reason:         "repeat of current status",
			PreviousStatus: current.Status,
		}, nil
	}

	if !order.CanTransition(current.Status, target) {
		s.logger.Info("rejecting non-forward transition",
			"external_id", ev.ExternalID,
			"current_status", current.Status,
			"reported_status", target)
		return &Result{
			Outcome:        OutcomeNoOp,
			Reason:         fmt.Sprintf("no edge %s -> %s", current.Status, target),
			PreviousStatus: current.Status,
		}, nil
	}

	var paidAt *time.Time
	if target == order.StatusPaid {
		now := ev.ReceivedAt
		if now.IsZero() {
			now = time.Now().UTC()
		}
		paidAt = &now
	}

	applied, err := s.repo.ConditionalUpdateStatus(ctx, current.ID, current.Status, target, paidAt)
	if err != nil {
		return nil, errors.NewStorageError("failed to update order status", err).
			WithDetails(map[string]string{"external_id": ev.ExternalID})
	}

	if !applied {
		// Another concurrent event advanced the order first. Expected under
		// at-least-once delivery, not a failure.
		s.logger.Info("conditional update lost the race",
			"external_id", ev.ExternalID,
			"expected_status", current.Status,
			"target_status", target)
		return &Result{
			Outcome:        OutcomeNoOp,
			Reason:         "concurrent transition already applied",
			PreviousStatus: current.Status,
		}, nil
	}

	snapshot := *current
	snapshot.Status = target
	if paidAt != nil {
		snapshot.PaidAt = paidAt
	}

	s.logger.Info("order transition applied",
		"order_id", current.ID,
		"external_id", ev.ExternalID,
		"previous_status", current.Status,
		"new_status", target)

	return &Result{
		Outcome:        OutcomeApplied,
		PreviousStatus: current.Status,
		NewStatus:      target,
		Order:          &snapshot,
	}, nil
}
