package ap

import "time"

// CreateRequest opens a payable for a non-purchase-order cause. Purchase
// order payables are raised by the confirmation hook, never by hand.
type CreateRequest struct {
	CauseType      CauseType `json:"causeType" validate:"required"`
	CauseID        int64     `json:"causeId" validate:"required,gt=0"`
	CauseReference string    `json:"causeReference" validate:"omitempty,max=100"`
	VendorID       int64     `json:"vendorId" validate:"required,gt=0"`
	TotalAmount    float64   `json:"totalAmount" validate:"required,gt=0"`
	Currency       string    `json:"currency" validate:"required,len=3"`
	DueDate        time.Time `json:"dueDate"`
}

// RecordPaymentRequest settles part or all of a payable. Amount is
// range-checked against the open balance under a row lock, so a bad value
// surfaces as its own business error rather than a validation failure.
type RecordPaymentRequest struct {
	Amount    float64   `json:"amount" validate:"required"`
	PaidAt    time.Time `json:"paidAt"`
	Method    string    `json:"method" validate:"omitempty,max=50"`
	Reference string    `json:"reference" validate:"omitempty,max=100"`
}

// ListFilter narrows List results. Status filters on the derived status.
type ListFilter struct {
	VendorID  int64
	CauseType CauseType
	Status    Status
	Page      int
	PerPage   int
}

// PayableDetail is a payable with its derived financial state. Payments is
// populated by Detail and left nil by List.
type PayableDetail struct {
	AccountsPayable
	PaidAmount float64
	Balance    float64
	Status     Status
	Payments   []VendorPayment
}
