package ap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wellkorea/wellkorea-erp/internal/shared"
)

// VendorPort verifies vendor references. Satisfied by the master data
// service.
type VendorPort interface {
	Exists(ctx context.Context, vendorID int64) (bool, error)
}

// AuditPort records audit trail entries. Satisfied by *shared.AuditLogger.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// defaultDueDays is the net-30 fallback when a create request carries no due
// date.
const defaultDueDays = 30

// Service carries accounts payable use cases: manual creation for
// non-purchase-order causes, payment recording, cancellation, and reads.
// Purchase-order payables enter through the confirmation hook, which talks
// to the repository's transaction entry points directly.
type Service struct {
	repo    Repository
	vendors VendorPort
	audit   AuditPort
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the accounts payable service.
func NewService(repo Repository, vendors VendorPort, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		vendors: vendors,
		logger:  logger,
		now:     time.Now,
	}
}

// SetAuditLogger wires the audit trail.
func (s *Service) SetAuditLogger(a AuditPort) {
	s.audit = a
}

// Create opens a payable for an expense report, service contract, recurring
// bill, or direct invoice. PURCHASE_ORDER causes are rejected here; those
// rows are raised by purchase order confirmation so the ledger stays in
// lockstep with procurement.
func (s *Service) Create(ctx context.Context, req CreateRequest, actorID int64) (*PayableDetail, error) {
	cause := DisbursementCause{Type: req.CauseType, ID: req.CauseID, Reference: req.CauseReference}
	if err := cause.Validate(); err != nil {
		return nil, err
	}
	if cause.Type == CausePurchaseOrder {
		return nil, ErrReservedCause
	}
	if s.vendors != nil {
		ok, err := s.vendors.Exists(ctx, req.VendorID)
		if err != nil {
			return nil, fmt.Errorf("verify vendor: %w", err)
		}
		if !ok {
			return nil, ErrVendorNotFound
		}
	}

	dueDate := req.DueDate
	if dueDate.IsZero() {
		dueDate = s.now().AddDate(0, 0, defaultDueDays)
	}
	p := &AccountsPayable{
		Cause:       cause,
		VendorID:    req.VendorID,
		TotalAmount: req.TotalAmount,
		Currency:    req.Currency,
		DueDate:     dueDate,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := s.repo.ExistsByCauseTx(ctx, tx.Tx(), cause)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrDuplicateCause, cause)
		}
		id, err := s.repo.InsertTx(ctx, tx.Tx(), p)
		if err != nil {
			return err
		}
		p.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "AP_CREATE", p.ID, map[string]any{"cause": cause.String()})
	return &PayableDetail{
		AccountsPayable: *p,
		Balance:         p.TotalAmount,
		Status:          p.StatusFor(0),
	}, nil
}

// RecordPayment appends a vendor payment. The payable row is locked for the
// balance check, so concurrent payments cannot overshoot the total; paying
// exactly the open balance is allowed.
func (s *Service) RecordPayment(ctx context.Context, payableID int64, req RecordPaymentRequest, actorID int64) (*PayableDetail, error) {
	var detail *PayableDetail
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetForUpdate(ctx, payableID)
		if err != nil {
			return err
		}
		paid, err := tx.PaidSum(ctx, payableID)
		if err != nil {
			return err
		}
		if err := p.CanAcceptPayment(paid, req.Amount); err != nil {
			return err
		}
		paidAt := req.PaidAt
		if paidAt.IsZero() {
			paidAt = s.now()
		}
		vp := &VendorPayment{
			PayableID: payableID,
			Amount:    req.Amount,
			PaidAt:    paidAt,
			Method:    req.Method,
			Reference: req.Reference,
			CreatedBy: actorID,
		}
		if _, err := tx.InsertPayment(ctx, vp); err != nil {
			return err
		}
		paid += req.Amount
		detail = &PayableDetail{
			AccountsPayable: *p,
			PaidAmount:      paid,
			Balance:         p.TotalAmount - paid,
			Status:          p.StatusFor(paid),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "AP_PAYMENT", payableID, map[string]any{"amount": req.Amount})
	return detail, nil
}

// Cancel marks an unpaid payable cancelled. Payables with recorded payments
// cannot be cancelled; the payment history is append-only and must keep
// adding up.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) (*PayableDetail, error) {
	var detail *PayableDetail
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.CancelledAt != nil {
			return fmt.Errorf("%w: payable %d", ErrAlreadyCancelled, id)
		}
		paid, err := tx.PaidSum(ctx, id)
		if err != nil {
			return err
		}
		if paid > 0 {
			return fmt.Errorf("%w: payable %d has %v paid", ErrHasPayments, id, paid)
		}
		if err := tx.SetCancelled(ctx, id); err != nil {
			return err
		}
		now := s.now()
		p.CancelledAt = &now
		detail = &PayableDetail{
			AccountsPayable: *p,
			Balance:         p.TotalAmount,
			Status:          StatusCancelled,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "AP_CANCEL", id, nil)
	return detail, nil
}

// Get returns one payable with payments and derived status.
func (s *Service) Get(ctx context.Context, id int64) (*PayableDetail, error) {
	return s.repo.Detail(ctx, id)
}

// List returns payables with derived status plus the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]PayableDetail, int, error) {
	return s.repo.List(ctx, filter)
}

// DueWithin returns open payables due inside the horizon. The due-soon scan
// feeds on this.
func (s *Service) DueWithin(ctx context.Context, days int) ([]PayableDetail, error) {
	return s.repo.DueWithin(ctx, days)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "accounts_payable",
		EntityID: id,
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
