package notification

import (
	"time"
)

// Feed categories rendered by the dashboard.
const (
	CategoryUserSignup = "user_signup"
	CategoryNewOrder   = "new_order"
	CategoryPaidOrder  = "paid_order"
)

// AdminNotification is one entry of the in-app dashboard feed. Content is
// stored structurally (title, message, order id) because the dashboard
// renders fields independently.
type AdminNotification struct {
	ID        int64     `gorm:"primaryKey"`
	Category  string    `gorm:"column:category;not null;index"`
	Title     string    `gorm:"column:title;not null"`
	Message   string    `gorm:"column:message;not null"`
	OrderID   *int64    `gorm:"column:order_id"`
	IsRead    bool      `gorm:"column:is_read;default:false;index"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (AdminNotification) TableName() string {
	return "admin_notifications"
}

func Categories() []string {
	return []string{CategoryUserSignup, CategoryNewOrder, CategoryPaidOrder}
}

func ValidCategory(c string) bool {
	switch c {
	case CategoryUserSignup, CategoryNewOrder, CategoryPaidOrder:
		return true
	}
	return false
}
