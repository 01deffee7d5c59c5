package users

import "errors"

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrRoleNotFound indicates the role does not exist.
	ErrRoleNotFound = errors.New("role not found")
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrDuplicateRole indicates another role already uses the name.
	ErrDuplicateRole = errors.New("role name already taken")
	// ErrUnknownPermission indicates a permission outside the catalog.
	ErrUnknownPermission = errors.New("unknown permission")
	// ErrRoleInUse indicates the role is still assigned to users and
	// cannot be deleted.
	ErrRoleInUse = errors.New("role still assigned to users")
)
