package quotation

import "time"

// CreateRequest opens a new version-1 DRAFT quotation for a project.
type CreateRequest struct {
	ProjectID    int64       `json:"project_id" validate:"required,gt=0"`
	QuoteDate    time.Time   `json:"quote_date" validate:"required"`
	ValidityDays int         `json:"validity_days" validate:"required,gt=0,lte=365"`
	Lines        []LineInput `json:"lines" validate:"omitempty,dive"`
}

// LineInput is one requested line position.
type LineInput struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

// UpdateLinesRequest replaces the full line set of a DRAFT quotation.
type UpdateLinesRequest struct {
	Lines []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// RejectRequest carries the mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// NewVersionRequest opens the successor version of a closed quotation.
type NewVersionRequest struct {
	QuoteDate time.Time `json:"quote_date"`
}

// ListFilter narrows quotation listings.
type ListFilter struct {
	ProjectID int64
	Status    Status
	Page      int
	PerPage   int
}

func linesFromInput(inputs []LineInput) []LineItem {
	lines := make([]LineItem, len(inputs))
	for i, in := range inputs {
		lines[i] = LineItem{
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
			LineNo:    i + 1,
		}
	}
	return lines
}
