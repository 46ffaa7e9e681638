package notification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jbalwikobra/storefront/internal/core/datamodel/delivery"
	"github.com/jbalwikobra/storefront/internal/core/datamodel/notification"
	"github.com/jbalwikobra/storefront/internal/messaging"
	"github.com/jbalwikobra/storefront/internal/metrics"
	"github.com/sethvargo/go-retry"
)

// DispatchRequest is the serialized dispatch input: it rides the queue and
// is stored as the delivery-log payload so a crashed attempt can be resumed
// without recomposing the message.
type DispatchRequest struct {
	Category     string `json:"category"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	OrderID      int64  `json:"order_id"`
	OrderType    string `json:"order_type"`
	TargetStatus string `json:"target_status"`
}

func (r DispatchRequest) Message() Message {
	return Message{
		Category: r.Category,
		Title:    r.Title,
		Body:     r.Body,
		OrderID:  r.OrderID,
	}
}

// DeliveryRepository is the storage side of the dedup authority. Claim must
// rely on the (dedup_key, channel) uniqueness constraint, not application
// locking: duplicate inbound webhooks race across processes.
type DeliveryRepository interface {
	Claim(ctx context.Context, entry *delivery.DeliveryLog) (claimed bool, existing *delivery.DeliveryLog, err error)
	MarkDelivered(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, id int64, attemptCount int, lastError string, nextRetryAt *time.Time) error
	MarkFailed(ctx context.Context, id int64, lastError string) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]*delivery.DeliveryLog, error)
	ListFailed(ctx context.Context, limit int) ([]*delivery.DeliveryLog, error)
	Rearm(ctx context.Context, id int64) (*delivery.DeliveryLog, error)
}

// AdminFeedWriter persists the structured in-app notification for the
// admin_feed channel.
type AdminFeedWriter interface {
	Create(ctx context.Context, n *notification.AdminNotification) error
}

// RetryPolicy is the single backoff abstraction shared by every channel.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseBackoff: time.Second,
		MaxBackoff:  8 * time.Second,
	}
}

// DedupKey derives the stable at-most-once identity of one logical
// delivery: same order, same target status, same channel, same key, on any
// instance.
func DedupKey(orderID int64, targetStatus, channel string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s:%s", orderID, targetStatus, channel)))
	return hex.EncodeToString(sum[:])
}

// channelsFor lists the channels a category fans out to.
func channelsFor(category string) []string {
	switch category {
	case notification.CategoryPaidOrder, notification.CategoryNewOrder:
		return []string{delivery.ChannelGroupMessage, delivery.ChannelAdminFeed}
	case notification.CategoryUserSignup:
		return []string{delivery.ChannelAdminFeed}
	default:
		return []string{delivery.ChannelAdminFeed}
	}
}

type Dispatcher struct {
	deliveries DeliveryRepository
	feed       AdminFeedWriter
	sender     messaging.Sender
	groups     messaging.GroupResolver
	policy     RetryPolicy
	logger     *slog.Logger
}

func NewDispatcher(deliveries DeliveryRepository, feed AdminFeedWriter, sender messaging.Sender, groups messaging.GroupResolver, policy RetryPolicy, logger *slog.Logger) *Dispatcher {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	return &Dispatcher{
		deliveries: deliveries,
		feed:       feed,
		sender:     sender,
		groups:     groups,
		policy:     policy,
		logger:     logger,
	}
}

// Dispatch fans one composed message out to its channels. Channels are
// independent: a group-message failure never blocks the admin feed. The
// returned error aggregates per-channel failures for logging; the order
// transition behind the message is already committed and is never unwound.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) error {
	var errs []error

	for _, channel := range channelsFor(req.Category) {
		if err := d.dispatchToChannel(ctx, channel, req); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", channel, err))
		}
	}

	return errors.Join(errs...)
}

func (d *Dispatcher) dispatchToChannel(ctx context.Context, channel string, req DispatchRequest) error {
	key := DedupKey(req.OrderID, req.TargetStatus, channel)

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	entry := &delivery.DeliveryLog{
		DedupKey:     key,
		Channel:      channel,
		Status:       delivery.StatusPending,
		OrderID:      req.OrderID,
		TargetStatus: req.TargetStatus,
		Category:     req.Category,
		Payload:      string(payload),
	}

	claimed, existing, err := d.deliveries.Claim(ctx, entry)
	if err != nil {
		return fmt.Errorf("claim delivery: %w", err)
	}

	if !claimed {
		// The insert's uniqueness constraint is the concurrency guard: the
		// winner's row is authoritative and the loser backs off. Stuck
		// pending rows are resumed by the redelivery worker.
		switch {
		case existing.IsDelivered():
			d.logger.Debug("delivery already completed, skipping",
				"dedup_key", key,
				"channel", channel)
		case existing.IsExhausted():
			d.logger.Warn("delivery previously failed terminally, awaiting manual resend",
				"dedup_key", key,
				"channel", channel,
				"delivery_id", existing.ID)
		default:
			d.logger.Debug("delivery claimed by concurrent dispatcher, skipping",
				"dedup_key", key,
				"channel", channel)
		}
		return nil
	}

	return d.attempt(ctx, entry, req)
}

// ProcessEntry resumes a claimed-but-unfinished delivery, typically after a
// crash or a backoff window. The remaining attempt budget picks up where
// the stored attempt count left off.
func (d *Dispatcher) ProcessEntry(ctx context.Context, entry *delivery.DeliveryLog) error {
	if entry.IsDelivered() || entry.IsExhausted() {
		return nil
	}

	var req DispatchRequest
	if err := json.Unmarshal([]byte(entry.Payload), &req); err != nil {
		msg := fmt.Sprintf("unreadable payload: %v", err)
		d.markExhausted(ctx, entry, msg)
		return fmt.Errorf("unmarshal payload for delivery %d: %w", entry.ID, err)
	}

	return d.attempt(ctx, entry, req)
}

func (d *Dispatcher) attempt(ctx context.Context, entry *delivery.DeliveryLog, req DispatchRequest) error {
	remaining := d.policy.MaxAttempts - entry.AttemptCount
	if remaining <= 0 {
		d.markExhausted(ctx, entry, "attempt budget exhausted")
		return nil
	}

	backoff := retry.WithCappedDuration(d.policy.MaxBackoff, retry.NewExponential(d.policy.BaseBackoff))
	backoff = retry.WithMaxRetries(uint64(remaining-1), backoff)

	attempt := entry.AttemptCount
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		sendErr := d.deliverOnce(ctx, entry.Channel, req)
		if sendErr == nil {
			metrics.DispatchAttemptsTotal.WithLabelValues(entry.Channel, "success").Inc()
			return nil
		}

		if isTransientDeliveryError(entry.Channel, sendErr) {
			metrics.DispatchAttemptsTotal.WithLabelValues(entry.Channel, "transient_error").Inc()
			next := time.Now().UTC().Add(d.backoffFor(attempt))
			if recErr := d.deliveries.RecordFailure(ctx, entry.ID, attempt, sendErr.Error(), &next); recErr != nil {
				d.logger.Error("failed to record delivery attempt",
					"error", recErr,
					"delivery_id", entry.ID)
			}
			return retry.RetryableError(sendErr)
		}

		metrics.DispatchAttemptsTotal.WithLabelValues(entry.Channel, "permanent_error").Inc()
		return sendErr
	})

	if err == nil {
		if markErr := d.deliveries.MarkDelivered(ctx, entry.ID); markErr != nil {
			d.logger.Error("delivery succeeded but status update failed",
				"error", markErr,
				"delivery_id", entry.ID)
			return markErr
		}
		d.logger.Info("delivery completed",
			"delivery_id", entry.ID,
			"channel", entry.Channel,
			"dedup_key", entry.DedupKey,
			"attempts", attempt)
		return nil
	}

	d.markExhausted(ctx, entry, err.Error())
	return err
}

// markExhausted records the terminal failure and emits the operator-visible
// alert; the entry is never retried automatically again.
func (d *Dispatcher) markExhausted(ctx context.Context, entry *delivery.DeliveryLog, reason string) {
	if err := d.deliveries.MarkFailed(ctx, entry.ID, reason); err != nil {
		d.logger.Error("failed to mark delivery as terminally failed",
			"error", err,
			"delivery_id", entry.ID)
	}

	metrics.DeliveriesExhaustedTotal.WithLabelValues(entry.Channel).Inc()
	d.logger.Error("delivery failed terminally, manual resend required",
		"delivery_id", entry.ID,
		"channel", entry.Channel,
		"dedup_key", entry.DedupKey,
		"order_id", entry.OrderID,
		"reason", reason)
}

func (d *Dispatcher) deliverOnce(ctx context.Context, channel string, req DispatchRequest) error {
	switch channel {
	case delivery.ChannelGroupMessage:
		destination, err := d.groups.DestinationFor(ctx, req.OrderType, req.Category)
		if err != nil {
			return err
		}
		text := req.Title + "\n" + req.Body
		_, err = d.sender.Send(ctx, destination, text)
		return err

	case delivery.ChannelAdminFeed:
		orderID := req.OrderID
		return d.feed.Create(ctx, &notification.AdminNotification{
			Category: req.Category,
			Title:    req.Title,
			Message:  req.Body,
			OrderID:  &orderID,
		})

	default:
		return fmt.Errorf("unknown channel %q", channel)
	}
}

// backoffFor mirrors the retry schedule (1s, 2s, 4s, capped) so the stored
// next_retry_at matches what the in-process backoff will do.
func (d *Dispatcher) backoffFor(attempt int) time.Duration {
	b := d.policy.BaseBackoff
	for i := 1; i < attempt; i++ {
		b *= 2
		if b >= d.policy.MaxBackoff {
			return d.policy.MaxBackoff
		}
	}
	if b > d.policy.MaxBackoff {
		return d.policy.MaxBackoff
	}
	return b
}

func isTransientDeliveryError(channel string, err error) bool {
	switch channel {
	case delivery.ChannelGroupMessage:
		return messaging.IsTransient(err)
	case delivery.ChannelAdminFeed:
		// Feed writes go to the same datastore as everything else; a
		// failure there is worth retrying.
		return true
	default:
		return false
	}
}
