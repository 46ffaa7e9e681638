package delivery

import (
	"time"
)

// Channels a composed message can be dispatched to.
const (
	ChannelGroupMessage = "group_message"
	ChannelAdminFeed    = "admin_feed"
)

const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// DeliveryLog is the dedup authority: one row per (dedup key, channel),
// enforced by a uniqueness constraint at the storage layer because
// duplicate inbound webhooks may race across processes.
type DeliveryLog struct {
	ID            int64      `gorm:"primaryKey"`
	DedupKey      string     `gorm:"column:dedup_key;not null;uniqueIndex:ux_delivery_key_channel,priority:1"`
	Channel       string     `gorm:"column:channel;not null;uniqueIndex:ux_delivery_key_channel,priority:2"`
	Status        string     `gorm:"column:status;default:pending"`
	OrderID       int64      `gorm:"column:order_id;not null"`
	TargetStatus  string     `gorm:"column:target_status;not null"`
	Category      string     `gorm:"column:category;not null"`
	Payload       string     `gorm:"column:payload;type:text"`
	AttemptCount  int        `gorm:"column:attempt_count;default:0"`
	LastAttemptAt *time.Time `gorm:"column:last_attempt_at"`
	NextRetryAt   *time.Time `gorm:"column:next_retry_at"`
	LastError     *string    `gorm:"column:last_error"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
}

func (DeliveryLog) TableName() string {
	return "delivery_logs"
}

func (d *DeliveryLog) IsDelivered() bool {
	return d.Status == StatusDelivered
}

// IsExhausted reports whether the entry failed terminally: attempts are
// spent and only a manual resend may re-arm it.
func (d *DeliveryLog) IsExhausted() bool {
	return d.Status == StatusFailed
}
