package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wellkorea/wellkorea-erp/internal/sequence"
	"github.com/wellkorea/wellkorea-erp/internal/shared"
)

// ProjectPort verifies project references. Satisfied by the project service.
type ProjectPort interface {
	Exists(ctx context.Context, projectID int64) (bool, error)
}

// CustomerPort verifies customer references. Satisfied by the master data
// service.
type CustomerPort interface {
	Exists(ctx context.Context, customerID int64) (bool, error)
}

// SequencePort issues invoice numbers. Satisfied by *sequence.Provider.
type SequencePort interface {
	NextInTx(ctx context.Context, tx pgx.Tx, scopeKey string) (int64, error)
}

// AuditPort records audit trail entries. Satisfied by *shared.AuditLogger.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service carries AR invoice use cases. Invoices are created as numberless
// drafts; issuing assigns the yearly sequence number on the issuing
// transaction, so a rolled-back issue burns its number instead of reusing it.
type Service struct {
	repo      Repository
	projects  ProjectPort
	customers CustomerPort
	sequences SequencePort
	audit     AuditPort
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the invoice service.
func NewService(repo Repository, projects ProjectPort, customers CustomerPort, sequences SequencePort, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		projects:  projects,
		customers: customers,
		sequences: sequences,
		logger:    logger,
		now:       time.Now,
	}
}

// SetAuditLogger wires the audit trail.
func (s *Service) SetAuditLogger(a AuditPort) {
	s.audit = a
}

// Create opens a DRAFT invoice. No number is assigned yet.
func (s *Service) Create(ctx context.Context, req CreateRequest, actorID int64) (*Invoice, error) {
	if s.projects != nil {
		ok, err := s.projects.Exists(ctx, req.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("verify project: %w", err)
		}
		if !ok {
			return nil, ErrProjectNotFound
		}
	}
	if s.customers != nil {
		ok, err := s.customers.Exists(ctx, req.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("verify customer: %w", err)
		}
		if !ok {
			return nil, ErrCustomerNotFound
		}
	}

	inv := &Invoice{
		ProjectID:   req.ProjectID,
		CustomerID:  req.CustomerID,
		TotalAmount: req.TotalAmount,
		Currency:    req.Currency,
		Status:      StatusDraft,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Insert(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "INVOICE_CREATE", inv.ID, nil)
	return inv, nil
}

// Issue moves a draft to ISSUED and stamps it with the next number from the
// yearly invoice sequence.
func (s *Service) Issue(ctx context.Context, id int64, actorID int64) (*Invoice, error) {
	var updated *Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := inv.TransitionTo(StatusIssued); err != nil {
			return err
		}
		year := s.now().Year()
		seq, err := s.sequences.NextInTx(ctx, tx.Tx(), sequence.InvoiceScope(year))
		if err != nil {
			return err
		}
		number := sequence.FormatInvoiceNumber(year, seq)
		if err := tx.SetIssued(ctx, id, number); err != nil {
			return err
		}
		issuedAt := s.now()
		inv.InvoiceNumber = &number
		inv.IssuedAt = &issuedAt
		updated = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "INVOICE_ISSUE", id, map[string]any{"number": *updated.InvoiceNumber})
	return updated, nil
}

// MarkPaid settles an issued invoice.
func (s *Service) MarkPaid(ctx context.Context, id int64, actorID int64) (*Invoice, error) {
	return s.updateStatus(ctx, id, StatusPaid, "INVOICE_PAID", actorID)
}

// Void cancels a draft or issued invoice. An issued number stays burned.
func (s *Service) Void(ctx context.Context, id int64, actorID int64) (*Invoice, error) {
	return s.updateStatus(ctx, id, StatusVoid, "INVOICE_VOID", actorID)
}

func (s *Service) updateStatus(ctx context.Context, id int64, target Status, action string, actorID int64) (*Invoice, error) {
	var updated *Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := inv.TransitionTo(target); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, id, target); err != nil {
			return err
		}
		updated = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, action, id, nil)
	return updated, nil
}

// Get returns one invoice.
func (s *Service) Get(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.Get(ctx, id)
}

// GetByNumber returns one invoice by its assigned number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	return s.repo.GetByNumber(ctx, number)
}

// List returns invoices matching the filter plus the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "invoice",
		EntityID: id,
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
