package delivery

import "errors"

var (
	// ErrNotFound indicates the delivery does not exist.
	ErrNotFound = errors.New("delivery not found")

	// ErrInvalidTransition indicates a status change outside the transition
	// table.
	ErrInvalidTransition = errors.New("invalid delivery status transition")

	// ErrQuotationNotDeliverable indicates the governing quotation is not in
	// a status that permits delivery.
	ErrQuotationNotDeliverable = errors.New("quotation does not permit delivery")

	// ErrProductNotQuoted indicates a delivery line references a product the
	// governing quotation never offered.
	ErrProductNotQuoted = errors.New("product not on quotation")

	// ErrNonPositiveQuantity indicates a delivery line with quantity <= 0.
	ErrNonPositiveQuantity = errors.New("delivery quantity must be positive")

	// ErrDuplicateProduct indicates the same product appears twice in one
	// delivery request.
	ErrDuplicateProduct = errors.New("duplicate product in delivery")

	// ErrOverDelivery indicates the requested quantity would push the
	// cumulative delivered total past the quoted quantity.
	ErrOverDelivery = errors.New("delivery exceeds quoted quantity")

	// ErrNoLines indicates a delivery request without line items.
	ErrNoLines = errors.New("delivery requires at least one line item")

	// ErrNoGoverningQuotation indicates the project has no quotation that
	// could govern the delivery.
	ErrNoGoverningQuotation = errors.New("no governing quotation for project")

	// ErrQuotationProjectMismatch indicates the requested quotation belongs
	// to a different project.
	ErrQuotationProjectMismatch = errors.New("quotation belongs to a different project")
)
