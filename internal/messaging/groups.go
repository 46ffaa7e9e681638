package messaging

import (
	"context"
)

// GroupResolver maps (order type, category) to the messaging destination
// that should receive the message. Backed by admin-managed configuration;
// read-only here.
type GroupResolver interface {
	DestinationFor(ctx context.Context, orderType, category string) (string, error)
}
