package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wellkorea/wellkorea-erp/internal/ap"
	"github.com/wellkorea/wellkorea-erp/internal/procurement"
	"github.com/wellkorea/wellkorea-erp/internal/project"
	"github.com/wellkorea/wellkorea-erp/internal/quotation"
)

// PayableStore is the slice of the accounts payable repository the
// confirmation hook needs. Both calls run on the caller-supplied
// transaction.
type PayableStore interface {
	ExistsByCauseTx(ctx context.Context, tx pgx.Tx, cause ap.DisbursementCause) (bool, error)
	InsertTx(ctx context.Context, tx pgx.Tx, p *ap.AccountsPayable) (int64, error)
}

// payableDueDays is the net-30 term applied to purchase-order payables.
const payableDueDays = 30

// Hooks runs cross-module side effects on the transaction of the command
// that triggered them: the effect commits or rolls back together with its
// trigger. Handlers must therefore never enqueue asynchronous work here.
type Hooks struct {
	payables        PayableStore
	activateProject func(ctx context.Context, tx pgx.Tx, projectID int64) (bool, error)
	logger          *slog.Logger
}

// NewHooks constructs the hook set.
func NewHooks(payables PayableStore, logger *slog.Logger) *Hooks {
	return &Hooks{
		payables:        payables,
		activateProject: project.ActivateOnTx,
		logger:          logger,
	}
}

var (
	_ quotation.IntegrationHandler   = (*Hooks)(nil)
	_ procurement.IntegrationHandler = (*Hooks)(nil)
)

// OnQuotationAccepted activates the quoted project on the accepting
// transaction. An already-active project is left alone, so replaying the
// acceptance is harmless.
func (h *Hooks) OnQuotationAccepted(ctx context.Context, tx pgx.Tx, evt quotation.AcceptedEvent) error {
	activated, err := h.activateProject(ctx, tx, evt.ProjectID)
	if err != nil {
		return fmt.Errorf("activate project %d: %w", evt.ProjectID, err)
	}
	if activated {
		h.logger.Info("project activated by accepted quotation",
			slog.Int64("project_id", evt.ProjectID),
			slog.Int64("quotation_id", evt.QuotationID))
	}
	return nil
}

// OnPurchaseOrderConfirmed raises the accounts payable for the order on the
// confirming transaction. At most one payable exists per purchase order:
// a replay hits the existence check — or, under a race, the unique index —
// and returns success without writing a second row.
func (h *Hooks) OnPurchaseOrderConfirmed(ctx context.Context, tx pgx.Tx, evt procurement.ConfirmedEvent) error {
	if h.payables == nil {
		return errors.New("integration: payable store not wired")
	}
	cause := ap.DisbursementCause{
		Type:      ap.CausePurchaseOrder,
		ID:        evt.PurchaseOrderID,
		Reference: evt.PONumber,
	}
	exists, err := h.payables.ExistsByCauseTx(ctx, tx, cause)
	if err != nil {
		return fmt.Errorf("check payable for %s: %w", cause, err)
	}
	if exists {
		h.logger.Info("payable already exists, skipping",
			slog.String("cause", cause.String()))
		return nil
	}

	occurred := evt.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	p := &ap.AccountsPayable{
		Cause:       cause,
		VendorID:    evt.VendorID,
		TotalAmount: evt.TotalAmount,
		Currency:    evt.Currency,
		DueDate:     occurred.AddDate(0, 0, payableDueDays),
	}
	id, err := h.payables.InsertTx(ctx, tx, p)
	if err != nil {
		if errors.Is(err, ap.ErrDuplicateCause) {
			h.logger.Info("payable raced into existence, skipping",
				slog.String("cause", cause.String()))
			return nil
		}
		return fmt.Errorf("insert payable for %s: %w", cause, err)
	}
	h.logger.Info("accounts payable raised",
		slog.Int64("payable_id", id),
		slog.String("cause", cause.String()),
		slog.Float64("amount", evt.TotalAmount),
		slog.String("currency", evt.Currency))
	return nil
}
