package postgres

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/jbalwikobra/storefront/internal"
	"github.com/jbalwikobra/storefront/internal/core/datamodel/order"
	"github.com/jbalwikobra/storefront/internal/reconciler"
	"gorm.io/gorm"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) reconciler.OrderRepository {
	return &OrderRepository{
		db: db,
	}
}

func (r *OrderRepository) GetByExternalID(ctx context.Context, externalID string) (*order.Order, error) {
	var o order.Order
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

// ConditionalUpdateStatus performs the compare-and-swap: the row is only
// touched when its status still equals expected. RowsAffected == 0 means a
// concurrent event advanced the order first.
func (r *OrderRepository) ConditionalUpdateStatus(ctx context.Context, id int64, expected, next string, paidAt *time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     next,
		"updated_at": time.Now().UTC(),
	}
	if paidAt != nil {
		updates["paid_at"] = *paidAt
	}

	res := r.db.WithContext(ctx).
		Model(&order.Order{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
