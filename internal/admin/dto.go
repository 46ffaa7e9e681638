package admin

import (
	"time"

	"github.com/jbalwikobra/storefront/internal/core/datamodel/delivery"
	"github.com/jbalwikobra/storefront/internal/core/datamodel/notification"
)

type NotificationResponse struct {
	ID        int64     `json:"id"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	OrderID   *int64    `json:"order_id,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	NextCursor    int64                  `json:"next_cursor,omitempty"`
}

type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

type DeliveryResponse struct {
	ID            int64      `json:"id"`
	Channel       string     `json:"channel"`
	Status        string     `json:"status"`
	OrderID       int64      `json:"order_id"`
	TargetStatus  string     `json:"target_status"`
	Category      string     `json:"category"`
	AttemptCount  int        `json:"attempt_count"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	LastError     *string    `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type DeliveryListResponse struct {
	Deliveries []DeliveryResponse `json:"deliveries"`
}

type ResendResponse struct {
	Status     string `json:"status"`
	DeliveryID int64  `json:"delivery_id"`
}

func toNotificationResponse(n *notification.AdminNotification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Category:  n.Category,
		Title:     n.Title,
		Message:   n.Message,
		OrderID:   n.OrderID,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

func toDeliveryResponse(d *delivery.DeliveryLog) DeliveryResponse {
	return DeliveryResponse{
		ID:            d.ID,
		Channel:       d.Channel,
		Status:        d.Status,
		OrderID:       d.OrderID,
		TargetStatus:  d.TargetStatus,
		Category:      d.Category,
		AttemptCount:  d.AttemptCount,
		LastAttemptAt: d.LastAttemptAt,
		LastError:     d.LastError,
		CreatedAt:     d.CreatedAt,
	}
}
