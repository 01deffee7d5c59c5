package project

import "errors"

var (
	// ErrNotFound indicates the project does not exist.
	ErrNotFound = errors.New("project not found")

	// ErrInvalidTransition indicates a status change outside the transition
	// table.
	ErrInvalidTransition = errors.New("invalid project status transition")

	// ErrCustomerNotFound indicates the referenced customer does not exist.
	ErrCustomerNotFound = errors.New("customer not found")
)
