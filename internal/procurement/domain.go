package procurement

import (
	"fmt"
	"time"
)

// Status is the purchase order lifecycle state.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// transitions is the single source of truth for legal status changes.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled},
	StatusCancelled: {},
}

// AllStatuses returns every purchase order status.
func AllStatuses() []Status {
	return []Status{StatusDraft, StatusConfirmed, StatusCancelled}
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether s -> target is a legal status change.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// CanEdit reports whether line items may still change.
func (s Status) CanEdit() bool {
	return s == StatusDraft
}

// PurchaseOrder is a commitment to buy from a vendor. Confirming it creates
// the matching payment obligation.
type PurchaseOrder struct {
	ID          int64      `json:"id"`
	PONumber    string     `json:"po_number"`
	VendorID    int64      `json:"vendor_id"`
	Currency    string     `json:"currency"`
	TotalAmount float64    `json:"total_amount"`
	Status      Status     `json:"status"`
	CreatedBy   int64      `json:"created_by"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Lines       []LineItem `json:"lines,omitempty"`
}

// LineItem is one product position on a purchase order.
type LineItem struct {
	ID              int64   `json:"id"`
	PurchaseOrderID int64   `json:"purchase_order_id"`
	ProductID       int64   `json:"product_id"`
	Quantity        float64 `json:"quantity"`
	UnitCost        float64 `json:"unit_cost"`
	LineNo          int     `json:"line_no"`
}

// Total returns quantity x unit cost for the line.
func (l LineItem) Total() float64 {
	return l.Quantity * l.UnitCost
}

// ComputeTotal sums the line totals.
func ComputeTotal(lines []LineItem) float64 {
	var total float64
	for _, l := range lines {
		total += l.Total()
	}
	return total
}

// TransitionTo applies a status change or rejects it with the offending
// pair.
func (po *PurchaseOrder) TransitionTo(target Status) error {
	if !target.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, string(target))
	}
	if !po.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, po.Status, target)
	}
	po.Status = target
	return nil
}

// SetLines replaces the line items, renumbers them and recomputes the
// total. Only DRAFT purchase orders are editable.
func (po *PurchaseOrder) SetLines(lines []LineItem) error {
	if !po.Status.CanEdit() {
		return fmt.Errorf("%w: status is %s", ErrNotEditable, po.Status)
	}
	if err := ValidateLines(lines); err != nil {
		return err
	}
	for i := range lines {
		lines[i].LineNo = i + 1
	}
	po.Lines = lines
	po.TotalAmount = ComputeTotal(lines)
	return nil
}

// ValidateLines checks basic line constraints: known product, positive
// quantity, non-negative cost, no duplicate products.
func ValidateLines(lines []LineItem) error {
	seen := make(map[int64]bool, len(lines))
	for i, l := range lines {
		if l.ProductID <= 0 {
			return fmt.Errorf("%w: line %d has no product", ErrInvalidLine, i+1)
		}
		if l.Quantity <= 0 {
			return fmt.Errorf("%w: line %d quantity must be positive", ErrInvalidLine, i+1)
		}
		if l.UnitCost < 0 {
			return fmt.Errorf("%w: line %d unit cost must not be negative", ErrInvalidLine, i+1)
		}
		if seen[l.ProductID] {
			return fmt.Errorf("%w: product %d appears twice", ErrInvalidLine, l.ProductID)
		}
		seen[l.ProductID] = true
	}
	return nil
}

// CanConfirm reports whether the purchase order may be confirmed.
func (po *PurchaseOrder) CanConfirm() error {
	if !po.Status.CanTransitionTo(StatusConfirmed) {
		return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, po.Status, StatusConfirmed)
	}
	if len(po.Lines) == 0 {
		return ErrNoLines
	}
	return nil
}
