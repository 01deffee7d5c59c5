package ap

import (
	"fmt"
	"time"
)

// CauseType identifies the kind of source document a payable settles.
type CauseType string

const (
	CausePurchaseOrder   CauseType = "PURCHASE_ORDER"
	CauseExpenseReport   CauseType = "EXPENSE_REPORT"
	CauseServiceContract CauseType = "SERVICE_CONTRACT"
	CauseRecurringBill   CauseType = "RECURRING_BILL"
	CauseDirectInvoice   CauseType = "DIRECT_INVOICE"
)

// AllCauseTypes returns the cause type catalog.
func AllCauseTypes() []CauseType {
	return []CauseType{
		CausePurchaseOrder,
		CauseExpenseReport,
		CauseServiceContract,
		CauseRecurringBill,
		CauseDirectInvoice,
	}
}

// IsValid reports whether c is a known cause type.
func (c CauseType) IsValid() bool {
	switch c {
	case CausePurchaseOrder, CauseExpenseReport, CauseServiceContract,
		CauseRecurringBill, CauseDirectInvoice:
		return true
	}
	return false
}

// DisbursementCause points at the source document that obliges the payment.
// At most one payable exists per (Type, ID) pair.
type DisbursementCause struct {
	Type      CauseType
	ID        int64
	Reference string
}

// Validate checks the cause is well formed.
func (c DisbursementCause) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownCauseType, c.Type)
	}
	if c.ID <= 0 {
		return fmt.Errorf("disbursement cause: non-positive cause id %d", c.ID)
	}
	return nil
}

func (c DisbursementCause) String() string {
	return fmt.Sprintf("%s/%d", c.Type, c.ID)
}

// Status is never stored; it is derived from the payment sum and the
// cancellation mark every time a payable is read.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
	StatusCancelled     Status = "CANCELLED"
)

// AllStatuses returns every derivable status.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusPartiallyPaid, StatusPaid, StatusCancelled}
}

// amountEpsilon absorbs float64 noise when comparing money sums, so a
// sequence of payments adding up to exactly the total derives PAID.
const amountEpsilon = 1e-9

// AccountsPayable is a payment obligation raised from a disbursement cause.
// Rows are append-only apart from the cancellation mark; the payment history
// lives in vendor_payments.
type AccountsPayable struct {
	ID          int64
	Cause       DisbursementCause
	VendorID    int64
	TotalAmount float64
	Currency    string
	DueDate     time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StatusFor derives the payable status from the paid sum.
func (p *AccountsPayable) StatusFor(paid float64) Status {
	if p.CancelledAt != nil {
		return StatusCancelled
	}
	switch {
	case p.TotalAmount > 0 && paid >= p.TotalAmount-amountEpsilon:
		return StatusPaid
	case paid > 0:
		return StatusPartiallyPaid
	default:
		return StatusPending
	}
}

// CanAcceptPayment checks a prospective payment against the open balance.
// Paying exactly the remaining balance is allowed.
func (p *AccountsPayable) CanAcceptPayment(paid, amount float64) error {
	if p.CancelledAt != nil {
		return fmt.Errorf("%w: payable %d", ErrCancelled, p.ID)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: got %v", ErrNonPositiveAmount, amount)
	}
	if paid+amount > p.TotalAmount+amountEpsilon {
		return fmt.Errorf("%w: payable %d, total %v, already paid %v, requested %v",
			ErrOverPayment, p.ID, p.TotalAmount, paid, amount)
	}
	return nil
}

// VendorPayment is one settlement against a payable. Payments are
// append-only; corrections are new rows, never edits.
type VendorPayment struct {
	ID        int64
	PayableID int64
	Amount    float64
	PaidAt    time.Time
	Method    string
	Reference string
	CreatedBy int64
	CreatedAt time.Time
}
