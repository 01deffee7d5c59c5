package ap

import "errors"

var (
	// ErrNotFound is returned when a payable does not exist.
	ErrNotFound = errors.New("accounts payable not found")

	// ErrUnknownCauseType is returned for a cause type outside the catalog.
	ErrUnknownCauseType = errors.New("unknown disbursement cause type")

	// ErrDuplicateCause is returned when a payable already exists for the
	// same (cause type, cause id) pair.
	ErrDuplicateCause = errors.New("accounts payable already exists for this cause")

	// ErrVendorNotFound is returned when the referenced vendor does not
	// exist.
	ErrVendorNotFound = errors.New("vendor not found")

	// ErrReservedCause is returned when a caller tries to create a
	// PURCHASE_ORDER payable by hand; those are raised by purchase order
	// confirmation only.
	ErrReservedCause = errors.New("purchase order payables are created by confirmation")

	// ErrCancelled is returned when recording a payment against a
	// cancelled payable.
	ErrCancelled = errors.New("accounts payable is cancelled")

	// ErrAlreadyCancelled is returned when cancelling twice.
	ErrAlreadyCancelled = errors.New("accounts payable is already cancelled")

	// ErrHasPayments is returned when cancelling a payable that has
	// recorded payments.
	ErrHasPayments = errors.New("accounts payable has recorded payments")

	// ErrNonPositiveAmount is returned for a zero or negative payment.
	ErrNonPositiveAmount = errors.New("payment amount must be positive")

	// ErrOverPayment is returned when a payment would push the paid total
	// past the payable amount. Paying exactly the open balance is allowed.
	ErrOverPayment = errors.New("payment exceeds open balance")
)
