package masterdata

// ProductRequest creates or updates a product. A nil IsActive leaves the
// activation state untouched (new products start active).
type ProductRequest struct {
	Code      string  `json:"code" validate:"required,max=50"`
	Name      string  `json:"name" validate:"required,max=200"`
	Unit      string  `json:"unit" validate:"required,max=20"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
	IsActive  *bool   `json:"is_active"`
}

// PartyRequest creates or updates a customer or vendor.
type PartyRequest struct {
	Code     string `json:"code" validate:"required,max=50"`
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"omitempty,email,max=255"`
	Phone    string `json:"phone" validate:"max=50"`
	Address  string `json:"address" validate:"max=500"`
	IsActive *bool  `json:"is_active"`
}

// ListFilter narrows and paginates master data lists.
type ListFilter struct {
	Search   string
	IsActive *bool
	Page     int
	PerPage  int
}
