// Package quotation implements the versioned sales quotation lifecycle:
// draft editing, submission, approval, customer dispatch, acceptance and
// version chains. All mutating operations run under the per-quotation
// exclusivity lock.
package quotation

import (
	"fmt"
	"time"
)

// Status of a quotation.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusSending  Status = "SENDING"
	StatusSent     Status = "SENT"
	StatusAccepted Status = "ACCEPTED"
)

// transitions is the single source of truth for legal status changes.
// SENDING→APPROVED is the revert edge taken when customer dispatch fails,
// so Send can be retried. REJECTED and ACCEPTED are terminal; continuing
// work happens on a new version row, never by mutating these.
var transitions = map[Status][]Status{
	StatusDraft:    {StatusPending},
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusSending},
	StatusSending:  {StatusSent, StatusApproved},
	StatusSent:     {StatusAccepted},
	StatusRejected: {},
	StatusAccepted: {},
}

// AllStatuses returns every status, in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusDraft, StatusPending, StatusApproved, StatusRejected,
		StatusSending, StatusSent, StatusAccepted,
	}
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether the table permits s → target.
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions.
func (s Status) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

// CanEdit reports whether line items may be mutated.
func (s Status) CanEdit() bool {
	return s == StatusDraft
}

// CanDeliver reports whether deliveries may be validated against this
// quotation: approved or later, never DRAFT/PENDING/REJECTED.
func (s Status) CanDeliver() bool {
	switch s {
	case StatusApproved, StatusSending, StatusSent, StatusAccepted:
		return true
	}
	return false
}

// AllowsNewVersion reports whether a fresh DRAFT row may be chained off a
// quotation in this status.
func (s Status) AllowsNewVersion() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusSent, StatusAccepted:
		return true
	}
	return false
}

// AllowsDocument reports whether customer-facing documents may be rendered.
func (s Status) AllowsDocument() bool {
	return s.IsValid() && s != StatusDraft
}

// Quotation is one version of the commercial terms offered for a project.
type Quotation struct {
	ID              int64      `json:"id"`
	ProjectID       int64      `json:"project_id"`
	Version         int        `json:"version"`
	Status          Status     `json:"status"`
	QuoteDate       time.Time  `json:"quote_date"`
	ValidityDays    int        `json:"validity_days"`
	TotalAmount     float64    `json:"total_amount"`
	CreatedBy       int64      `json:"created_by"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	ApproverID      *int64     `json:"approver_id,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	DeletedAt       *time.Time `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Lines           []LineItem `json:"lines,omitempty"`
}

// LineItem is one quoted product position.
type LineItem struct {
	ID          int64   `json:"id"`
	QuotationID int64   `json:"quotation_id"`
	ProductID   int64   `json:"product_id"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	LineNo      int     `json:"line_no"`
}

// Total returns the line amount.
func (l LineItem) Total() float64 {
	return l.Quantity * l.UnitPrice
}

// ComputeTotal sums the line totals. TotalAmount is never stored
// independently of this computation.
func ComputeTotal(lines []LineItem) float64 {
	var total float64
	for _, l := range lines {
		total += l.Total()
	}
	return total
}

// RecomputeTotal refreshes TotalAmount from the current lines.
func (q *Quotation) RecomputeTotal() {
	q.TotalAmount = ComputeTotal(q.Lines)
}

// TransitionTo validates the status change against the table and applies it.
func (q *Quotation) TransitionTo(target Status) error {
	if !target.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, string(target))
	}
	if !q.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, q.Status, target)
	}
	q.Status = target
	return nil
}

// SetLines replaces the line items, renumbers them and recomputes the total.
// Only DRAFT quotations accept line mutations.
func (q *Quotation) SetLines(lines []LineItem) error {
	if !q.Status.CanEdit() {
		return fmt.Errorf("%w: status is %s", ErrNotEditable, q.Status)
	}
	if err := ValidateLines(lines); err != nil {
		return err
	}
	for i := range lines {
		lines[i].QuotationID = q.ID
		lines[i].LineNo = i + 1
	}
	q.Lines = lines
	q.RecomputeTotal()
	return nil
}

// ValidateLines checks every line: a known product, a strictly positive
// quantity, a non-negative price and no product appearing twice.
func ValidateLines(lines []LineItem) error {
	seen := make(map[int64]struct{}, len(lines))
	for i, l := range lines {
		if l.ProductID <= 0 {
			return fmt.Errorf("%w: line %d has no product", ErrInvalidLine, i+1)
		}
		if l.Quantity <= 0 {
			return fmt.Errorf("%w: line %d quantity %.2f must be positive", ErrInvalidLine, i+1, l.Quantity)
		}
		if l.UnitPrice < 0 {
			return fmt.Errorf("%w: line %d unit price %.2f is negative", ErrInvalidLine, i+1, l.UnitPrice)
		}
		if _, dup := seen[l.ProductID]; dup {
			return fmt.Errorf("%w: product %d appears more than once", ErrInvalidLine, l.ProductID)
		}
		seen[l.ProductID] = struct{}{}
	}
	return nil
}

// CanSubmit reports whether the quotation may move to PENDING: the table
// must permit it and at least one line item must exist.
func (q *Quotation) CanSubmit() error {
	if !q.Status.CanTransitionTo(StatusPending) {
		return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, q.Status, StatusPending)
	}
	if len(q.Lines) == 0 {
		return ErrNoLineItems
	}
	return nil
}

// NewVersion builds the successor DRAFT row: version+1, same project, lines
// copied without identifiers. The receiver is left untouched; after the
// successor exists the old row only ever changes audit fields.
func (q *Quotation) NewVersion(actorID int64, quoteDate time.Time) (*Quotation, error) {
	if !q.Status.AllowsNewVersion() {
		return nil, fmt.Errorf("%w: status is %s", ErrVersionNotAllowed, q.Status)
	}
	next := &Quotation{
		ProjectID:    q.ProjectID,
		Version:      q.Version + 1,
		Status:       StatusDraft,
		QuoteDate:    quoteDate,
		ValidityDays: q.ValidityDays,
		CreatedBy:    actorID,
	}
	next.Lines = make([]LineItem, len(q.Lines))
	for i, l := range q.Lines {
		next.Lines[i] = LineItem{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineNo:    i + 1,
		}
	}
	next.RecomputeTotal()
	return next, nil
}
