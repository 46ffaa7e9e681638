package postgres

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/jbalwikobra/storefront/internal"
	"github.com/jbalwikobra/storefront/internal/core/datamodel/delivery"
	notificationsvc "github.com/jbalwikobra/storefront/internal/notification"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeliveryRepository struct {
	db *gorm.DB
}

func NewDeliveryRepository(db *gorm.DB) notificationsvc.DeliveryRepository {
	return &DeliveryRepository{
		db: db,
	}
}

// Claim inserts the entry, letting the unique (dedup_key, channel) index
// arbitrate concurrent claims. The loser gets claimed=false plus the
// winner's row; there is no read-then-write window.
func (r *DeliveryRepository) Claim(ctx context.Context, entry *delivery.DeliveryLog) (bool, *delivery.DeliveryLog, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedup_key"}, {Name: "channel"}},
			DoNothing: true,
		}).
		Create(entry)
	if result.Error != nil {
		return false, nil, result.Error
	}

	if result.RowsAffected > 0 {
		return true, nil, nil
	}

	var existing delivery.DeliveryLog
	err := r.db.WithContext(ctx).
		Where("dedup_key = ? AND channel = ?", entry.DedupKey, entry.Channel).
		First(&existing).Error
	if err != nil {
		return false, nil, err
	}
	return false, &existing, nil
}

func (r *DeliveryRepository) MarkDelivered(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&delivery.DeliveryLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          delivery.StatusDelivered,
			"last_attempt_at": now,
			"next_retry_at":   nil,
			"last_error":      nil,
			"updated_at":      now,
		}).Error
}

func (r *DeliveryRepository) RecordFailure(ctx context.Context, id int64, attemptCount int, lastError string, nextRetryAt *time.Time) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&delivery.DeliveryLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempt_count":   attemptCount,
			"last_attempt_at": now,
			"next_retry_at":   nextRetryAt,
			"last_error":      lastError,
			"updated_at":      now,
		}).Error
}

func (r *DeliveryRepository) MarkFailed(ctx context.Context, id int64, lastError string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&delivery.DeliveryLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          delivery.StatusFailed,
			"last_attempt_at": now,
			"next_retry_at":   nil,
			"last_error":      lastError,
			"updated_at":      now,
		}).Error
}

// stalledClaimGrace is how long a claimed entry may sit without a recorded
// attempt before the redelivery worker picks it up. A row with a NULL
// next_retry_at belongs to a process that died between claiming and its
// first attempt (or whose failure write was lost).
const stalledClaimGrace = time.Minute

// ListDue returns pending entries whose retry window has passed, oldest
// first, for the redelivery worker. Claimed rows that never recorded an
// attempt are included once they are older than the grace period.
func (r *DeliveryRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*delivery.DeliveryLog, error) {
	var entries []*delivery.DeliveryLog
	err := r.db.WithContext(ctx).
		Where("status = ?", delivery.StatusPending).
		Where("next_retry_at <= ? OR (next_retry_at IS NULL AND created_at <= ?)", now, now.Add(-stalledClaimGrace)).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *DeliveryRepository) ListFailed(ctx context.Context, limit int) ([]*delivery.DeliveryLog, error) {
	var entries []*delivery.DeliveryLog
	err := r.db.WithContext(ctx).
		Where("status = ?", delivery.StatusFailed).
		Order("updated_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Rearm resets a terminally failed entry so a manual resend can run it
// through the normal attempt path again.
func (r *DeliveryRepository) Rearm(ctx context.Context, id int64) (*delivery.DeliveryLog, error) {
	var entry delivery.DeliveryLog
	err := r.db.WithContext(ctx).First(&entry, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrDeliveryNotFound
		}
		return nil, err
	}

	now := time.Now().UTC()
	err = r.db.WithContext(ctx).
		Model(&delivery.DeliveryLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        delivery.StatusPending,
			"attempt_count": 0,
			"next_retry_at": nil,
			"last_error":    nil,
			"updated_at":    now,
		}).Error
	if err != nil {
		return nil, err
	}

	entry.Status = delivery.StatusPending
	entry.AttemptCount = 0
	entry.NextRetryAt = nil
	entry.LastError = nil
	entry.UpdatedAt = now
	return &entry, nil
}
