package users

// CreateUserRequest registers a new account. The bcrypt limit caps the
// password at 72 bytes.
type CreateUserRequest struct {
	Email    string  `json:"email" validate:"required,email,max=255"`
	Name     string  `json:"name" validate:"required,max=100"`
	Password string  `json:"password" validate:"required,min=8,max=72"`
	RoleIDs  []int64 `json:"role_ids" validate:"dive,gt=0"`
}

// UpdateUserRequest changes profile fields. A nil IsActive leaves the
// activation state untouched.
type UpdateUserRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	IsActive *bool  `json:"is_active"`
}

// ChangePasswordRequest replaces the password hash.
type ChangePasswordRequest struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// SetRolesRequest replaces a user's role assignments.
type SetRolesRequest struct {
	RoleIDs []int64 `json:"role_ids" validate:"dive,gt=0"`
}

// RoleRequest creates or updates a role and its permission set.
type RoleRequest struct {
	Name        string   `json:"name" validate:"required,max=50"`
	Description string   `json:"description" validate:"max=200"`
	Permissions []string `json:"permissions" validate:"dive,required"`
}

// ListFilter narrows and paginates the user list.
type ListFilter struct {
	Search   string
	IsActive *bool
	Page     int
	PerPage  int
}
