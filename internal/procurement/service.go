package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wellkorea/wellkorea-erp/internal/sequence"
	"github.com/wellkorea/wellkorea-erp/internal/shared"
)

// SequencePort issues purchase order numbers on the caller's transaction.
type SequencePort interface {
	NextInTx(ctx context.Context, tx pgx.Tx, scopeKey string) (int64, error)
}

// VendorPort verifies vendor references without importing masterdata.
type VendorPort interface {
	Exists(ctx context.Context, vendorID int64) (bool, error)
}

// AuditPort records append-only audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the purchase order lifecycle. Confirm runs the
// integration hook on the confirming transaction, so the purchase order and
// its payment obligation commit together.
type Service struct {
	repo        Repository
	sequences   SequencePort
	vendors     VendorPort
	integration IntegrationHandler
	audit       AuditPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the procurement service.
func NewService(repo Repository, sequences SequencePort, vendors VendorPort, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		sequences: sequences,
		vendors:   vendors,
		logger:    logger,
		now:       time.Now,
	}
}

// SetIntegrationHandler wires the hook invoked when a purchase order is
// confirmed.
func (s *Service) SetIntegrationHandler(h IntegrationHandler) {
	s.integration = h
}

// SetAuditLogger wires the audit trail.
func (s *Service) SetAuditLogger(a AuditPort) {
	s.audit = a
}

// Create opens a DRAFT purchase order with a freshly issued PO number.
func (s *Service) Create(ctx context.Context, req CreateRequest, actorID int64) (*PurchaseOrder, error) {
	if s.vendors != nil {
		ok, err := s.vendors.Exists(ctx, req.VendorID)
		if err != nil {
			return nil, fmt.Errorf("verify vendor: %w", err)
		}
		if !ok {
			return nil, ErrVendorNotFound
		}
	}

	po := &PurchaseOrder{
		VendorID:  req.VendorID,
		Currency:  req.Currency,
		Status:    StatusDraft,
		CreatedBy: actorID,
	}
	if len(req.Lines) > 0 {
		if err := po.SetLines(linesFromInput(req.Lines)); err != nil {
			return nil, err
		}
	}

	year := s.now().Year()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := s.sequences.NextInTx(ctx, tx.Tx(), sequence.PurchaseOrderScope(year))
		if err != nil {
			return err
		}
		po.PONumber = sequence.FormatPONumber(year, seq)
		id, err := tx.Insert(ctx, po)
		if err != nil {
			return err
		}
		po.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actorID, "PO_CREATE", po.ID, map[string]any{"po_number": po.PONumber})
	return po, nil
}

// UpdateLines replaces the line items of a DRAFT purchase order.
func (s *Service) UpdateLines(ctx context.Context, id int64, req UpdateLinesRequest, actorID int64) (*PurchaseOrder, error) {
	var updated *PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := po.SetLines(linesFromInput(req.Lines)); err != nil {
			return err
		}
		if err := tx.ReplaceLines(ctx, id, po.Lines, po.TotalAmount); err != nil {
			return err
		}
		updated = po
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "PO_UPDATE_LINES", id, map[string]any{"total_amount": updated.TotalAmount})
	return updated, nil
}

// Confirm moves DRAFT→CONFIRMED and raises the confirmed event on the same
// transaction. If the hook fails, the confirmation rolls back with it.
func (s *Service) Confirm(ctx context.Context, id int64, actorID int64) (*PurchaseOrder, error) {
	var updated *PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := po.CanConfirm(); err != nil {
			return err
		}
		po.Status = StatusConfirmed
		if err := tx.UpdateStatus(ctx, id, StatusConfirmed); err != nil {
			return err
		}
		if s.integration != nil {
			evt := ConfirmedEvent{
				PurchaseOrderID: po.ID,
				PONumber:        po.PONumber,
				VendorID:        po.VendorID,
				TotalAmount:     po.TotalAmount,
				Currency:        po.Currency,
				ActorID:         actorID,
				OccurredAt:      s.now(),
			}
			if err := s.integration.OnPurchaseOrderConfirmed(ctx, tx.Tx(), evt); err != nil {
				return fmt.Errorf("purchase order confirmed hook: %w", err)
			}
		}
		updated = po
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "PO_CONFIRM", id, nil)
	return updated, nil
}

// Cancel voids a purchase order. Confirmed orders may still be cancelled;
// settling any already-created payable is handled in accounts payable, not
// here.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) (*PurchaseOrder, error) {
	var updated *PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := po.TransitionTo(StatusCancelled); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, id, StatusCancelled); err != nil {
			return err
		}
		updated = po
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "PO_CANCEL", id, nil)
	return updated, nil
}

// Get loads one purchase order with lines.
func (s *Service) Get(ctx context.Context, id int64) (*PurchaseOrder, error) {
	return s.repo.Get(ctx, id)
}

// List returns purchase orders matching the filter plus the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "purchase_order",
		EntityID: id,
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
