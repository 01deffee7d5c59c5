package project

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wellkorea/wellkorea-erp/internal/sequence"
	"github.com/wellkorea/wellkorea-erp/internal/shared"
)

// SequencePort issues document numbers on the caller's transaction.
// Satisfied by *sequence.Provider.
type SequencePort interface {
	NextInTx(ctx context.Context, tx pgx.Tx, scopeKey string) (int64, error)
}

// CustomerPort verifies customer references without importing masterdata.
type CustomerPort interface {
	Exists(ctx context.Context, customerID int64) (bool, error)
}

// AuditPort records append-only audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages projects and their job codes.
type Service struct {
	repo      Repository
	sequences SequencePort
	customers CustomerPort
	audit     AuditPort
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the project service.
func NewService(repo Repository, sequences SequencePort, customers CustomerPort, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		sequences: sequences,
		customers: customers,
		logger:    logger,
		now:       time.Now,
	}
}

// SetAuditLogger wires the audit trail.
func (s *Service) SetAuditLogger(a AuditPort) {
	s.audit = a
}

// Create opens a PLANNED project. The job code is issued by the sequence
// provider on the same transaction as the insert, so an aborted create
// burns the number instead of reusing it.
func (s *Service) Create(ctx context.Context, req CreateRequest, actorID int64) (*Project, error) {
	if s.customers != nil {
		ok, err := s.customers.Exists(ctx, req.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("verify customer: %w", err)
		}
		if !ok {
			return nil, ErrCustomerNotFound
		}
	}

	p := &Project{
		Name:       req.Name,
		CustomerID: req.CustomerID,
		Status:     StatusPlanned,
		CreatedBy:  actorID,
	}
	year := s.now().Year()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := s.sequences.NextInTx(ctx, tx.Tx(), sequence.JobCodeScope(year))
		if err != nil {
			return err
		}
		p.JobCode = sequence.FormatJobCode(year, seq)
		id, err := tx.Insert(ctx, p)
		if err != nil {
			return err
		}
		p.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actorID, "PROJECT_CREATE", p.ID, map[string]any{"job_code": p.JobCode})
	return p, nil
}

// Rename updates the project name.
func (s *Service) Rename(ctx context.Context, id int64, req UpdateRequest, actorID int64) (*Project, error) {
	var updated *Project
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		p.Name = req.Name
		if err := tx.Update(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "PROJECT_RENAME", id, nil)
	return updated, nil
}

// UpdateStatus applies a manual lifecycle change (complete, cancel, or an
// explicit activation outside the quotation flow).
func (s *Service) UpdateStatus(ctx context.Context, id int64, target Status, actorID int64) (*Project, error) {
	var updated *Project
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := p.TransitionTo(target); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, id, target); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "PROJECT_STATUS", id, map[string]any{"status": string(target)})
	return updated, nil
}

// Get loads one project.
func (s *Service) Get(ctx context.Context, id int64) (*Project, error) {
	return s.repo.Get(ctx, id)
}

// GetByJobCode loads one project by its job code.
func (s *Service) GetByJobCode(ctx context.Context, jobCode string) (*Project, error) {
	return s.repo.GetByJobCode(ctx, jobCode)
}

// Exists reports whether the project exists. Satisfies the project ports of
// quotation and other packages.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	return s.repo.Exists(ctx, id)
}

// List returns projects matching the filter plus the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Project, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "project",
		EntityID: id,
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
