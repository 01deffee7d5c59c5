package project

// CreateRequest opens a new project in PLANNED with a freshly issued job
// code.
type CreateRequest struct {
	Name       string `json:"name" validate:"required,max=200"`
	CustomerID int64  `json:"customer_id" validate:"required,gt=0"`
}

// UpdateRequest renames a project.
type UpdateRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// UpdateStatusRequest moves a project along its lifecycle.
type UpdateStatusRequest struct {
	Status Status `json:"status" validate:"required"`
}

// ListFilter narrows project listings.
type ListFilter struct {
	Status     Status `json:"status,omitempty"`
	CustomerID int64  `json:"customer_id,omitempty"`
	Search     string `json:"search,omitempty"`
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
}
