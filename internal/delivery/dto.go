package delivery

import "time"

// LineInput is one requested product quantity. Quantity is range-checked by
// the Guard so that a non-positive value surfaces as its own business error
// rather than a generic validation failure.
type LineInput struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"required"`
}

// CreateRequest records a new delivery. QuotationID pins the governing
// quotation explicitly; when omitted the project's current version chain
// head governs.
type CreateRequest struct {
	ProjectID    int64       `json:"project_id" validate:"required,gt=0"`
	QuotationID  *int64      `json:"quotation_id,omitempty" validate:"omitempty,gt=0"`
	DeliveryDate time.Time   `json:"delivery_date" validate:"required"`
	Notes        string      `json:"notes,omitempty" validate:"max=1000"`
	Lines        []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// UpdateStatusRequest moves a delivery along its lifecycle.
type UpdateStatusRequest struct {
	Status Status `json:"status" validate:"required"`
}

// ListFilter narrows delivery listings.
type ListFilter struct {
	ProjectID int64  `json:"project_id,omitempty"`
	Status    Status `json:"status,omitempty"`
	Page      int    `json:"page"`
	PerPage   int    `json:"per_page"`
}

// RemainingLine is the read model for how much of a quoted product can
// still be delivered.
type RemainingLine struct {
	ProductID int64   `json:"product_id"`
	Quoted    float64 `json:"quoted"`
	Delivered float64 `json:"delivered"`
	Remaining float64 `json:"remaining"`
}
