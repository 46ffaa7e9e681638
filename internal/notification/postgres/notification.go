package postgres

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/jbalwikobra/storefront/internal"
	"github.com/jbalwikobra/storefront/internal/core/datamodel/notification"
	notificationsvc "github.com/jbalwikobra/storefront/internal/notification"
	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) notificationsvc.AdminNotificationRepository {
	return &NotificationRepository{
		db: db,
	}
}

func (r *NotificationRepository) Create(ctx context.Context, n *notification.AdminNotification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*notification.AdminNotification, error) {
	var n notification.AdminNotification
	err := r.db.WithContext(ctx).First(&n, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotificationNotFound
		}
		return nil, err
	}
	return &n, nil
}

// List pages the feed newest-first with an ID cursor: IDs are monotonic,
// so `id < cursor` is a stable page boundary even while new rows arrive.
func (r *NotificationRepository) List(ctx context.Context, filter notificationsvc.ListFilter) ([]*notification.AdminNotification, error) {
	query := r.db.WithContext(ctx).Model(&notification.AdminNotification{})

	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Unread {
		query = query.Where("is_read = ?", false)
	}
	if filter.Cursor > 0 {
		query = query.Where("id < ?", filter.Cursor)
	}

	var items []*notification.AdminNotification
	err := query.Order("id DESC").Limit(filter.Limit).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&notification.AdminNotification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_read":    true,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *NotificationRepository) UnreadCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&notification.AdminNotification{}).
		Where("is_read = ?", false).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
