package quotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wellkorea/wellkorea-erp/internal/shared"
)

// ProjectPort verifies project references without importing the project
// package.
type ProjectPort interface {
	Exists(ctx context.Context, projectID int64) (bool, error)
}

// ProductPort verifies that quoted products exist in the catalog and are
// active. Optional; when unset, line references are only checked by the
// database foreign key.
type ProductPort interface {
	Exists(ctx context.Context, productID int64) (bool, error)
}

// AuditPort records append-only audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the quotation lifecycle. Every operation that mutates
// an existing quotation goes through withQuotationLock: the distributed lock
// is acquired before the transaction opens and released after it commits or
// rolls back, so concurrent mutations of one quotation never interleave.
type Service struct {
	repo        Repository
	projects    ProjectPort
	products    ProductPort
	locker      *shared.Locker
	lockTTL     time.Duration
	lockWait    time.Duration
	integration IntegrationHandler
	dispatcher  DispatchEnqueuer
	approvals   *shared.ApprovalRecorder
	audit       AuditPort
	logger      *slog.Logger
}

// NewService constructs the quotation service.
func NewService(repo Repository, projects ProjectPort, locker *shared.Locker, lockTTL, lockWait time.Duration, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		projects: projects,
		locker:   locker,
		lockTTL:  lockTTL,
		lockWait: lockWait,
		logger:   logger,
	}
}

// SetIntegrationHandler wires the hook invoked when a quotation is accepted.
func (s *Service) SetIntegrationHandler(h IntegrationHandler) {
	s.integration = h
}

// SetDispatcher wires the background dispatcher used by Send.
func (s *Service) SetDispatcher(d DispatchEnqueuer) {
	s.dispatcher = d
}

// SetApprovalRecorder wires the approval ledger.
func (s *Service) SetApprovalRecorder(r *shared.ApprovalRecorder) {
	s.approvals = r
}

// SetProductCatalog wires the catalog check applied to incoming lines.
func (s *Service) SetProductCatalog(p ProductPort) {
	s.products = p
}

// SetAuditLogger wires the audit trail.
func (s *Service) SetAuditLogger(a AuditPort) {
	s.audit = a
}

// withQuotationLock serializes fn against every other mutating call for the
// same quotation ID. Lock first, transaction second: a contender blocks
// before it can read any state the holder is about to change. A non-positive
// ID is a programming error at the call boundary and fails fast without
// touching Redis.
func (s *Service) withQuotationLock(ctx context.Context, quotationID int64, fn func(context.Context) error) error {
	if quotationID <= 0 {
		return fmt.Errorf("quotation lock: non-positive quotation id %d", quotationID)
	}
	handle, err := s.locker.Acquire(ctx, shared.QuotationLockKey(quotationID), s.lockTTL, s.lockWait)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		if rerr := handle.Release(releaseCtx); rerr != nil {
			if s.logger != nil {
				s.logger.Warn("release quotation lock",
					slog.Int64("quotation_id", quotationID), slog.Any("error", rerr))
			}
		}
	}()
	return fn(ctx)
}

// verifyProducts checks every distinct product referenced by the incoming
// lines against the catalog. NewVersion copies lines that already passed
// this check, so only Create and UpdateLines call it.
func (s *Service) verifyProducts(ctx context.Context, lines []LineInput) error {
	if s.products == nil {
		return nil
	}
	seen := make(map[int64]struct{}, len(lines))
	for _, line := range lines {
		if _, dup := seen[line.ProductID]; dup {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ok, err := s.products.Exists(ctx, line.ProductID)
		if err != nil {
			return fmt.Errorf("verify product %d: %w", line.ProductID, err)
		}
		if !ok {
			return fmt.Errorf("product %d: %w", line.ProductID, ErrProductNotFound)
		}
	}
	return nil
}

// Create opens the version-1 DRAFT quotation for a project. A project may
// carry only one active version chain; once it exists, new terms are issued
// through NewVersion.
func (s *Service) Create(ctx context.Context, req CreateRequest, actorID int64) (*Quotation, error) {
	ok, err := s.projects.Exists(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("verify project: %w", err)
	}
	if !ok {
		return nil, ErrProjectNotFound
	}
	if err := s.verifyProducts(ctx, req.Lines); err != nil {
		return nil, err
	}

	q := &Quotation{
		ProjectID:    req.ProjectID,
		Version:      1,
		Status:       StatusDraft,
		QuoteDate:    req.QuoteDate,
		ValidityDays: req.ValidityDays,
		CreatedBy:    actorID,
	}
	if err := q.SetLines(linesFromInput(req.Lines)); err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		max, err := tx.MaxVersion(ctx, req.ProjectID)
		if err != nil {
			return err
		}
		if max > 0 {
			return fmt.Errorf("project %d already has a quotation chain: %w", req.ProjectID, ErrVersionNotAllowed)
		}
		id, err := tx.Insert(ctx, q)
		if err != nil {
			return err
		}
		q.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actorID, "QUOTATION_CREATE", q.ID, map[string]any{"project_id": q.ProjectID, "version": q.Version})
	return q, nil
}

// UpdateLines replaces the line set of a DRAFT quotation and recomputes the
// total inside the same transaction.
func (s *Service) UpdateLines(ctx context.Context, id int64, req UpdateLinesRequest, actorID int64) (*Quotation, error) {
	if err := s.verifyProducts(ctx, req.Lines); err != nil {
		return nil, err
	}
	var updated *Quotation
	err := s.withQuotationLock(ctx, id, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			q, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := q.SetLines(linesFromInput(req.Lines)); err != nil {
				return err
			}
			if err := tx.ReplaceLines(ctx, id, q.Lines, q.TotalAmount); err != nil {
				return err
			}
			updated = q
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "QUOTATION_UPDATE_LINES", id, map[string]any{"total_amount": updated.TotalAmount})
	return updated, nil
}

// Submit moves DRAFT→PENDING. Requires at least one line item.
func (s *Service) Submit(ctx context.Context, id int64, actorID int64) (*Quotation, error) {
	var updated *Quotation
	err := s.withQuotationLock(ctx, id, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			q, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := q.CanSubmit(); err != nil {
				return err
			}
			q.Status = StatusPending
			if err := tx.UpdateStatus(ctx, id, StatusPending, actorID, nil); err != nil {
				return err
			}
			updated = q
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.recordApproval(ctx, id, actorID, shared.ApprovalSubmit, fmt.Sprintf("quotation v%d submitted", updated.Version))
	s.recordAudit(ctx, actorID, "QUOTATION_SUBMIT", id, nil)
	return updated, nil
}

// Approve records the external approval decision, PENDING→APPROVED.
func (s *Service) Approve(ctx context.Context, id int64, approverID int64) (*Quotation, error) {
	var updated *Quotation
	err := s.withQuotationLock(ctx, id, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			q, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := q.TransitionTo(StatusApproved); err != nil {
				return err
			}
			if err := tx.UpdateStatus(ctx, id, StatusApproved, approverID, nil); err != nil {
				return err
			}
			updated = q
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.recordApproval(ctx, id, approverID, shared.ApprovalApprove, "")
	s.recordAudit(ctx, approverID, "QUOTATION_APPROVE", id, nil)
	return updated, nil
}

// Reject records the external rejection decision, PENDING→REJECTED. The
// reason is mandatory and stored on the row.
func (s *Service) Reject(ctx context.Context, id int64, actorID int64, reason string) (*Quotation, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	var updated *Quotation
	err := s.withQuotationLock(ctx, id, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			q, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := q.TransitionTo(StatusRejected); err != nil {
				return err
			}
			if err := tx.UpdateStatus(ctx, id, StatusRejected, actorID, &reason); err != nil {
				return err
			}
			q.RejectionReason = &reason
			updated = q
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.recordApproval(ctx, id, actorID, shared.ApprovalReject, reason)
	s.recordAudit(ctx, actorID, "QUOTATION_REJECT", id, map[string]any{"reason": reason})
	return updated, nil
}

// Send moves APPROVED→SENDING and hands the quotation to the background
// dispatcher. The enqueue happens after the status committed but still under
// the lock; if enqueueing fails the status is reverted to APPROVED so Send
// can be retried.
func (s *Service) Send(ctx context.Context, id int64, actorID int64) (*Quotation, error) {
	if s.dispatcher == nil {
		return nil, errors.New("quotation: dispatcher not configured")
	}
	var updated *Quotation
	err := s.withQuotationLock(ctx, id, func(ctx context.Context) error {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			q, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := q.TransitionTo(StatusSending); err != nil {
				return err
			}
			if err := tx.UpdateStatus(ctx, id, StatusSending, actorID, nil); err != nil {
				return err
			}
			updated = q
			return nil
		})
		if err != nil {
			return err
		}

		if err := s.dispatcher.EnqueueQuotationDispatch(ctx, id); err != nil {
			if revertErr := s.revertSending(ctx, id); revertErr != nil && s.logger != nil {
				s.logger.Error("revert quotation after enqueue failure",
					slog.Int64("quotation_id", id), slog.Any("error", revertErr))
			}
			return fmt.Errorf("enqueue quotation dispatch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "QUOTATION_SEND", id, nil)
	return updated, nil
}

func (s *Service) revertSending(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := q.TransitionTo(StatusApproved); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, StatusApproved, 0, nil)
	})
}

// MarkSent confirms customer dispatch, SENDING→SENT. Called by the worker.
func (s *Service) MarkSent(ctx context.Context, id int64) (*Quotation, error) {
	var updated *Quotation
	err := s.withQuotationLock(ctx, id, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			q, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := q.TransitionTo(StatusSent); err != nil {
				return err
			}
			if err := tx.UpdateStatus(ctx, id, StatusSent, 0, nil); err != nil {
				return err
			}
			updated = q
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, 0, "QUOTATION_SENT", id, nil)
	return updated, nil
}

// MarkDispatchFailed reverts SENDING→APPROVED after a failed dispatch and
// records the cause, so Send can be retried. Called by the worker.
func (s *Service) MarkDispatchFailed(ctx context.Context, id int64, cause string) error {
	err := s.withQuotationLock(ctx, id, func(ctx context.Context) error {
		return s.revertSending(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, 0, "QUOTATION_DISPATCH_FAILED", id, map[string]any{"cause": cause})
	return nil
}

// Accept records customer confirmation, SENT→ACCEPTED, and runs the
// integration hook (project activation) on the same transaction.
func (s *Service) Accept(ctx context.Context, id int64, actorID int64) (*Quotation, error) {
	var updated *Quotation
	err := s.withQuotationLock(ctx, id, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			q, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := q.TransitionTo(StatusAccepted); err != nil {
				return err
			}
			if err := tx.UpdateStatus(ctx, id, StatusAccepted, actorID, nil); err != nil {
				return err
			}
			if s.integration != nil {
				evt := AcceptedEvent{
					QuotationID: q.ID,
					ProjectID:   q.ProjectID,
					Version:     q.Version,
					TotalAmount: q.TotalAmount,
					ActorID:     actorID,
					OccurredAt:  time.Now(),
				}
				if err := s.integration.OnQuotationAccepted(ctx, tx.Tx(), evt); err != nil {
					return fmt.Errorf("quotation accepted hook: %w", err)
				}
			}
			updated = q
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "QUOTATION_ACCEPT", id, nil)
	return updated, nil
}

// NewVersion chains a fresh DRAFT row off a closed quotation: version+1,
// lines copied, the source row untouched. Only the head of the project's
// chain can be versioned, which keeps the chain linear.
func (s *Service) NewVersion(ctx context.Context, sourceID int64, req NewVersionRequest, actorID int64) (*Quotation, error) {
	var created *Quotation
	err := s.withQuotationLock(ctx, sourceID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			src, err := tx.GetForUpdate(ctx, sourceID)
			if err != nil {
				return err
			}
			max, err := tx.MaxVersion(ctx, src.ProjectID)
			if err != nil {
				return err
			}
			if src.Version != max {
				return fmt.Errorf("%w: version %d, chain head is %d", ErrNotLatestVersion, src.Version, max)
			}
			quoteDate := req.QuoteDate
			if quoteDate.IsZero() {
				quoteDate = time.Now()
			}
			next, err := src.NewVersion(actorID, quoteDate)
			if err != nil {
				return err
			}
			id, err := tx.Insert(ctx, next)
			if err != nil {
				return err
			}
			next.ID = id
			created = next
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "QUOTATION_NEW_VERSION", created.ID,
		map[string]any{"source_id": sourceID, "version": created.Version})
	return created, nil
}

// SoftDelete tombstones a DRAFT quotation. Non-draft rows are part of the
// commercial record and cannot be deleted.
func (s *Service) SoftDelete(ctx context.Context, id int64, actorID int64) error {
	err := s.withQuotationLock(ctx, id, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			q, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if q.Status != StatusDraft {
				return fmt.Errorf("%w: status is %s", ErrNotDeletable, q.Status)
			}
			return tx.SoftDelete(ctx, id)
		})
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "QUOTATION_DELETE", id, nil)
	return nil
}

// Get loads one quotation with lines.
func (s *Service) Get(ctx context.Context, id int64) (*Quotation, error) {
	return s.repo.Get(ctx, id)
}

// HeadForProject returns the project's current version chain head.
func (s *Service) HeadForProject(ctx context.Context, projectID int64) (*Quotation, error) {
	return s.repo.HeadForProject(ctx, projectID)
}

// List returns quotations matching the filter plus the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Quotation, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "quotation",
		EntityID: id,
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) recordApproval(ctx context.Context, id, actorID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "QUOTATION",
		RefID:   id,
		ActorID: actorID,
		Action:  action,
		Note:    note,
	})
}
