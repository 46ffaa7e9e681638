package postgres

import (
	"context"
	"errors"

	apperrors "github.com/jbalwikobra/storefront/internal"
	"github.com/jbalwikobra/storefront/internal/core/datamodel/group"
	"github.com/jbalwikobra/storefront/internal/messaging"
	"gorm.io/gorm"
)

type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) messaging.GroupResolver {
	return &GroupRepository{
		db: db,
	}
}

// DestinationFor resolves the destination for an (order type, category)
// pair, falling back to a row with an empty order type so one group can
// cover a whole category.
func (r *GroupRepository) DestinationFor(ctx context.Context, orderType, category string) (string, error) {
	var g group.NotificationGroup
	err := r.db.WithContext(ctx).
		Where("order_type = ? AND category = ? AND is_active = ?", orderType, category, true).
		First(&g).Error
	if err == nil {
		return g.DestinationID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	err = r.db.WithContext(ctx).
		Where("order_type = '' AND category = ? AND is_active = ?", category, true).
		First(&g).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.ErrGroupNotConfigured
		}
		return "", err
	}
	return g.DestinationID, nil
}
