package invoice

import (
	"fmt"
	"time"
)

// Status is the AR invoice lifecycle state.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusIssued Status = "ISSUED"
	StatusPaid   Status = "PAID"
	StatusVoid   Status = "VOID"
)

// transitions is the single source of truth for legal status changes.
// Drafts can be voided before they ever carry a number; PAID and VOID are
// terminal.
var transitions = map[Status][]Status{
	StatusDraft:  {StatusIssued, StatusVoid},
	StatusIssued: {StatusPaid, StatusVoid},
	StatusPaid:   {},
	StatusVoid:   {},
}

// AllStatuses returns every known status.
func AllStatuses() []Status {
	return []Status{StatusDraft, StatusIssued, StatusPaid, StatusVoid}
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether s -> target is a legal status change.
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Invoice is an AR invoice for a project. InvoiceNumber stays nil until the
// invoice is issued; the number is assigned from the yearly sequence at that
// moment and never reused.
type Invoice struct {
	ID            int64
	InvoiceNumber *string
	ProjectID     int64
	CustomerID    int64
	TotalAmount   float64
	Currency      string
	Status        Status
	IssuedAt      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TransitionTo moves the invoice to target or fails with
// ErrInvalidTransition.
func (inv *Invoice) TransitionTo(target Status) error {
	if !target.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}
	if !inv.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, inv.Status, target)
	}
	inv.Status = target
	return nil
}
