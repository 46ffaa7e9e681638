package order

import (
	"time"
)

// Order statuses. Transitions only move forward; terminal statuses never
// regress. The refund edge is the single exception reachable from paid or
// completed.
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusCompleted = "completed"
	StatusExpired   = "expired"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"

	// StatusUnknown tags callbacks whose gateway vocabulary we do not
	// recognize; it never reaches storage.
	StatusUnknown = "unknown"
)

const (
	TypePurchase = "purchase"
	TypeRental   = "rental"
)

type Order struct {
	ID            int64      `gorm:"primaryKey"`
	ExternalID    string     `gorm:"column:external_id;not null;uniqueIndex"`
	AmountIDR     int64      `gorm:"column:amount_idr;not null"`
	Status        string     `gorm:"column:status;default:pending"`
	OrderType     string     `gorm:"column:order_type;default:purchase"`
	CustomerName  string     `gorm:"column:customer_name"`
	CustomerPhone string     `gorm:"column:customer_phone"`
	ProductID     int64      `gorm:"column:product_id"`
	ProductName   string     `gorm:"column:product_name"`
	PaidAt        *time.Time `gorm:"column:paid_at"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// allowedTransitions is the forward-edge table of the order state machine.
var allowedTransitions = map[string][]string{
	StatusPending:   {StatusPaid, StatusExpired, StatusFailed},
	StatusPaid:      {StatusCompleted, StatusRefunded},
	StatusCompleted: {StatusRefunded},
}

// CanTransition reports whether from -> to is an allowed forward edge.
// Repeats and regressions are not edges; callers treat them as no-ops.
func CanTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no forward gateway-driven transition is
// expected from the status, the explicit refund path excluded.
func IsTerminal(status string) bool {
	switch status {
	case StatusExpired, StatusFailed, StatusRefunded, StatusCompleted:
		return true
	}
	return false
}

func (o *Order) IsPaid() bool {
	return o.Status == StatusPaid || o.Status == StatusCompleted
}
