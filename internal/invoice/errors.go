package invoice

import "errors"

var (
	// ErrNotFound is returned when an invoice does not exist.
	ErrNotFound = errors.New("invoice not found")

	// ErrInvalidTransition is returned for an illegal status change.
	ErrInvalidTransition = errors.New("invalid invoice status transition")

	// ErrProjectNotFound is returned when the referenced project does not
	// exist.
	ErrProjectNotFound = errors.New("project not found")

	// ErrCustomerNotFound is returned when the referenced customer does
	// not exist.
	ErrCustomerNotFound = errors.New("customer not found")
)
