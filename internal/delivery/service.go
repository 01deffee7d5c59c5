package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wellkorea/wellkorea-erp/internal/quotation"
	"github.com/wellkorea/wellkorea-erp/internal/shared"
)

// QuotationSource loads the quotations that govern deliveries.
type QuotationSource interface {
	Get(ctx context.Context, id int64) (*quotation.Quotation, error)
	HeadForProject(ctx context.Context, projectID int64) (*quotation.Quotation, error)
}

// AuditPort records append-only audit entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service records deliveries against quoted terms. Creation runs under the
// governing quotation's exclusivity lock: the Guard's read of the delivered
// totals and the insert of the new rows cannot interleave with another
// delivery, nor with a status change of the quotation itself.
type Service struct {
	repo       Repository
	quotations QuotationSource
	guard      *Guard
	locker     *shared.Locker
	lockTTL    time.Duration
	lockWait   time.Duration
	audit      AuditPort
	logger     *slog.Logger
}

// NewService constructs the delivery service. The Guard reads delivered
// totals through the repository.
func NewService(repo Repository, quotations QuotationSource, locker *shared.Locker, lockTTL, lockWait time.Duration, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		quotations: quotations,
		guard:      NewGuard(repo),
		locker:     locker,
		lockTTL:    lockTTL,
		lockWait:   lockWait,
		logger:     logger,
	}
}

// SetAuditLogger wires the audit trail.
func (s *Service) SetAuditLogger(a AuditPort) {
	s.audit = a
}

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
		if rerr := handle.Release(releaseCtx); rerr != nil && s.logger != nil {
			s.logger.Warn("release quotation lock",
				slog.Int64("quotation_id", quotationID), slog.Any("error", rerr))
		}
	}()
	return fn(ctx)
}

// Create validates a new delivery against the governing quotation and
// records it. The governing quotation is the explicitly requested one, or
// the project's current chain head. Validation and insert run under the
// quotation lock; when the head moved between resolving and locking, the
// resolution is retried against the new head.
func (s *Service) Create(ctx context.Context, req CreateRequest, actorID int64) (*Delivery, error) {
	var created *Delivery
	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		govID, err := s.governingID(ctx, req)
		if err != nil {
			return nil, err
		}

		retry := false
		err = s.withQuotationLock(ctx, govID, func(ctx context.Context) error {
			gov, err := s.quotations.Get(ctx, govID)
			if err != nil {
				if errors.Is(err, quotation.ErrNotFound) {
					return ErrNoGoverningQuotation
				}
				return err
			}
			if req.QuotationID == nil {
				head, err := s.quotations.HeadForProject(ctx, req.ProjectID)
				if err != nil {
					return err
				}
				if head.ID != gov.ID {
					retry = true
					return nil
				}
			} else if gov.ProjectID != req.ProjectID {
				return fmt.Errorf("%w: quotation %d is for project %d", ErrQuotationProjectMismatch, gov.ID, gov.ProjectID)
			}

			if err := s.guard.Validate(ctx, gov, req.Lines); err != nil {
				return err
			}

			d := &Delivery{
				ProjectID:    req.ProjectID,
				QuotationID:  &gov.ID,
				DeliveryDate: req.DeliveryDate,
				Status:       StatusPreparing,
				DelivererID:  actorID,
				Notes:        req.Notes,
			}
			for _, ln := range req.Lines {
				d.Lines = append(d.Lines, LineItem{ProductID: ln.ProductID, Quantity: ln.Quantity})
			}

			return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				id, err := tx.Insert(ctx, d)
				if err != nil {
					return err
				}
				d.ID = id
				created = d
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
		if !retry {
			s.recordAudit(ctx, actorID, "DELIVERY_CREATE", created.ID,
				map[string]any{"project_id": created.ProjectID, "quotation_id": *created.QuotationID})
			return created, nil
		}
	}
	return nil, fmt.Errorf("delivery: governing quotation kept changing, giving up after %d attempts", maxAttempts)
}

func (s *Service) governingID(ctx context.Context, req CreateRequest) (int64, error) {
	if req.QuotationID != nil {
		return *req.QuotationID, nil
	}
	head, err := s.quotations.HeadForProject(ctx, req.ProjectID)
	if err != nil {
		if errors.Is(err, quotation.ErrNotFound) {
			return 0, ErrNoGoverningQuotation
		}
		return 0, err
	}
	return head.ID, nil
}

// UpdateStatus moves a delivery along PREPARING→SHIPPED→DELIVERED, or to
// RETURNED from any of those. Marking RETURNED frees the consumed quota, so
// no quotation lock is needed here.
func (s *Service) UpdateStatus(ctx context.Context, id int64, target Status, actorID int64) (*Delivery, error) {
	var updated *Delivery
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := d.TransitionTo(target); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, id, target); err != nil {
			return err
		}
		updated = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "DELIVERY_STATUS", id, map[string]any{"status": string(target)})
	return updated, nil
}

// Get loads one delivery with lines.
func (s *Service) Get(ctx context.Context, id int64) (*Delivery, error) {
	return s.repo.Get(ctx, id)
}

// List returns deliveries matching the filter plus the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Delivery, int, error) {
	return s.repo.List(ctx, filter)
}

// Remaining reports, per quoted product, how much the project can still
// deliver under its current chain head.
func (s *Service) Remaining(ctx context.Context, projectID int64) ([]RemainingLine, error) {
	head, err := s.quotations.HeadForProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, quotation.ErrNotFound) {
			return nil, ErrNoGoverningQuotation
		}
		return nil, err
	}
	delivered, err := s.repo.DeliveredByProduct(ctx, projectID)
	if err != nil {
		return nil, err
	}

	out := make([]RemainingLine, 0, len(head.Lines))
	for _, ln := range head.Lines {
		got := delivered[ln.ProductID]
		out = append(out, RemainingLine{
			ProductID: ln.ProductID,
			Quoted:    ln.Quantity,
			Delivered: got,
			Remaining: ln.Quantity - got,
		})
	}
	return out, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "delivery",
		EntityID: id,
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
