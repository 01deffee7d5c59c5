package procurement

// LineInput is one requested purchase position.
type LineInput struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	UnitCost  float64 `json:"unit_cost" validate:"gte=0"`
}

// CreateRequest opens a DRAFT purchase order.
type CreateRequest struct {
	VendorID int64       `json:"vendor_id" validate:"required,gt=0"`
	Currency string      `json:"currency" validate:"required,len=3"`
	Lines    []LineInput `json:"lines,omitempty" validate:"omitempty,dive"`
}

// UpdateLinesRequest replaces the line items of a DRAFT purchase order.
type UpdateLinesRequest struct {
	Lines []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// ListFilter narrows purchase order listings.
type ListFilter struct {
	VendorID int64  `json:"vendor_id,omitempty"`
	Status   Status `json:"status,omitempty"`
	Page     int    `json:"page"`
	PerPage  int    `json:"per_page"`
}

func linesFromInput(in []LineInput) []LineItem {
	lines := make([]LineItem, 0, len(in))
	for _, l := range in {
		lines = append(lines, LineItem{ProductID: l.ProductID, Quantity: l.Quantity, UnitCost: l.UnitCost})
	}
	return lines
}
