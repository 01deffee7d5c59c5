package procurement

import "errors"

var (
	// ErrNotFound indicates the purchase order does not exist.
	ErrNotFound = errors.New("purchase order not found")

	// ErrInvalidTransition indicates a status change outside the transition
	// table.
	ErrInvalidTransition = errors.New("invalid purchase order status transition")

	// ErrNotEditable indicates line changes on a non-DRAFT purchase order.
	ErrNotEditable = errors.New("purchase order is not editable")

	// ErrNoLines indicates confirmation of a purchase order without lines.
	ErrNoLines = errors.New("purchase order requires at least one line item")

	// ErrInvalidLine indicates a line item violating basic constraints.
	ErrInvalidLine = errors.New("invalid purchase order line item")

	// ErrVendorNotFound indicates the referenced vendor does not exist.
	ErrVendorNotFound = errors.New("vendor not found")
)
