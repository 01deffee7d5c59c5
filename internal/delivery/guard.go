package delivery

import (
	"context"
	"fmt"

	"github.com/wellkorea/wellkorea-erp/internal/quotation"
)

// quantityEpsilon absorbs float rounding so that delivering exactly the
// remaining quantity always passes.
const quantityEpsilon = 1e-9

// DeliveredQuantitySource reports the cumulative delivered quantity per
// product for a project, excluding RETURNED deliveries. Totals are
// recomputed on every call; nothing is cached.
type DeliveredQuantitySource interface {
	DeliveredByProduct(ctx context.Context, projectID int64) (map[int64]float64, error)
}

// Guard validates a new delivery against the governing quotation's terms.
// It takes no locks itself; callers serialize delivery creation through the
// quotation exclusivity lock so two concurrent requests cannot both read a
// stale delivered total.
type Guard struct {
	delivered DeliveredQuantitySource
}

// NewGuard constructs a Guard over the given delivered-quantity source.
func NewGuard(src DeliveredQuantitySource) *Guard {
	return &Guard{delivered: src}
}

// Validate checks every precondition for recording a delivery, in order:
// deliverable quotation status, at least one line, quoted product, positive
// quantity, no duplicate product, and no over-delivery. Each violation
// surfaces as its own sentinel so callers can present the specific rule.
func (g *Guard) Validate(ctx context.Context, q *quotation.Quotation, lines []LineInput) error {
	if !q.Status.CanDeliver() {
		return fmt.Errorf("%w: quotation %d is %s", ErrQuotationNotDeliverable, q.ID, q.Status)
	}
	if len(lines) == 0 {
		return ErrNoLines
	}

	quoted := make(map[int64]float64, len(q.Lines))
	for _, ln := range q.Lines {
		quoted[ln.ProductID] += ln.Quantity
	}

	delivered, err := g.delivered.DeliveredByProduct(ctx, q.ProjectID)
	if err != nil {
		return fmt.Errorf("load delivered totals: %w", err)
	}

	seen := make(map[int64]bool, len(lines))
	for _, ln := range lines {
		quotedQty, ok := quoted[ln.ProductID]
		if !ok {
			return fmt.Errorf("%w: product %d", ErrProductNotQuoted, ln.ProductID)
		}
		if ln.Quantity <= 0 {
			return fmt.Errorf("%w: product %d, got %v", ErrNonPositiveQuantity, ln.ProductID, ln.Quantity)
		}
		if seen[ln.ProductID] {
			return fmt.Errorf("%w: product %d", ErrDuplicateProduct, ln.ProductID)
		}
		seen[ln.ProductID] = true

		if delivered[ln.ProductID]+ln.Quantity > quotedQty+quantityEpsilon {
			return fmt.Errorf("%w: product %d, quoted %v, already delivered %v, requested %v",
				ErrOverDelivery, ln.ProductID, quotedQty, delivered[ln.ProductID], ln.Quantity)
		}
	}
	return nil
}
