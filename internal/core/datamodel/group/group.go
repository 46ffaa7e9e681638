package group

import (
	"time"
)

// NotificationGroup maps an order type and category to the messaging
// destination that should receive operator messages. Rows are managed by
// the admin configuration screens; this subsystem only reads them.
type NotificationGroup struct {
	ID            int64     `gorm:"primaryKey"`
	OrderType     string    `gorm:"column:order_type;not null;uniqueIndex:ux_group_type_category,priority:1"`
	Category      string    `gorm:"column:category;not null;uniqueIndex:ux_group_type_category,priority:2"`
	DestinationID string    `gorm:"column:destination_id;not null"`
	IsActive      bool      `gorm:"column:is_active;default:true"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (NotificationGroup) TableName() string {
	return "notification_groups"
}
