package procurement

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// ConfirmedEvent is emitted when a purchase order reaches CONFIRMED. The
// payload is immutable; handlers receive a copy.
type ConfirmedEvent struct {
	PurchaseOrderID int64
	PONumber        string
	VendorID        int64
	TotalAmount     float64
	Currency        string
	ActorID         int64
	OccurredAt      time.Time
}

// IntegrationHandler reacts to purchase order events. OnPurchaseOrderConfirmed
// runs synchronously on the confirming transaction, before commit, so the
// status change and its side effect are atomic.
type IntegrationHandler interface {
	OnPurchaseOrderConfirmed(ctx context.Context, tx pgx.Tx, evt ConfirmedEvent) error
}
