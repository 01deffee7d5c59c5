package quotation

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// AcceptedEvent is emitted when a customer accepts a SENT quotation.
type AcceptedEvent struct {
	QuotationID int64
	ProjectID   int64
	Version     int
	TotalAmount float64
	ActorID     int64
	OccurredAt  time.Time
}

// IntegrationHandler reacts to quotation lifecycle events. Handlers run
// synchronously on the accepting transaction, immediately before commit, so
// a rollback of the acceptance also rolls back every side effect.
type IntegrationHandler interface {
	OnQuotationAccepted(ctx context.Context, tx pgx.Tx, evt AcceptedEvent) error
}

// DispatchEnqueuer hands a SENDING quotation to the background dispatcher
// that renders and mails the document to the customer.
type DispatchEnqueuer interface {
	EnqueueQuotationDispatch(ctx context.Context, quotationID int64) error
}
