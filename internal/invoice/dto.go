package invoice

// CreateRequest opens a draft invoice for a project.
type CreateRequest struct {
	ProjectID   int64   `json:"projectId" validate:"required,gt=0"`
	CustomerID  int64   `json:"customerId" validate:"required,gt=0"`
	TotalAmount float64 `json:"totalAmount" validate:"required,gt=0"`
	Currency    string  `json:"currency" validate:"required,len=3"`
}

// ListFilter narrows List results.
type ListFilter struct {
	ProjectID  int64
	CustomerID int64
	Status     Status
	Page       int
	PerPage    int
}
