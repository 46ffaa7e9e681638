package notification

import (
	"context"
	"log/slog"

	apperrors "github.com/jbalwikobra/storefront/internal"
	"github.com/jbalwikobra/storefront/internal/core/common/validation"
	"github.com/jbalwikobra/storefront/internal/core/datamodel/notification"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ListFilter narrows the admin feed query. Cursor is the ID of the last
// row from the previous page; zero means first page.
type ListFilter struct {
	Category string
	Unread   bool
	Cursor   int64
	Limit    int
}

// AdminNotificationRepository is the feed's storage contract. It extends
// AdminFeedWriter with the read/update side used by the admin endpoints.
type AdminNotificationRepository interface {
	AdminFeedWriter
	GetByID(ctx context.Context, id int64) (*notification.AdminNotification, error)
	List(ctx context.Context, filter ListFilter) ([]*notification.AdminNotification, error)
	MarkRead(ctx context.Context, id int64) error
	UnreadCount(ctx context.Context) (int64, error)
}

// StoreService exposes the admin notification feed: newest-first listing
// with cursor pagination, per-item read marking and an unread badge count.
type StoreService struct {
	repo   AdminNotificationRepository
	logger *slog.Logger
}

func NewStoreService(repo AdminNotificationRepository, logger *slog.Logger) *StoreService {
	return &StoreService{
		repo:   repo,
		logger: logger,
	}
}

func (s *StoreService) List(ctx context.Context, filter ListFilter) ([]*notification.AdminNotification, error) {
	if filter.Category != "" {
		validator := validation.NewValidator()
		validator.Field("category", filter.Category).OneOf(notification.Categories())
		if err := validator.Validate(); err != nil {
			return nil, err
		}
	}

	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list admin notifications", "error", err)
		return nil, apperrors.NewStorageError("failed to list notifications", err)
	}
	return items, nil
}

// MarkRead flips a notification to read. Marking an already-read
// notification succeeds without touching the row again.
func (s *StoreService) MarkRead(ctx context.Context, id int64) error {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.IsRead {
		return nil
	}

	if err := s.repo.MarkRead(ctx, id); err != nil {
		s.logger.Error("failed to mark notification as read", "error", err, "notification_id", id)
		return apperrors.NewStorageError("failed to mark notification as read", err)
	}

	s.logger.Info("notification marked as read", "notification_id", id)
	return nil
}

func (s *StoreService) UnreadCount(ctx context.Context) (int64, error) {
	count, err := s.repo.UnreadCount(ctx)
	if err != nil {
		s.logger.Error("failed to count unread notifications", "error", err)
		return 0, apperrors.NewStorageError("failed to count unread notifications", err)
	}
	return count, nil
}
