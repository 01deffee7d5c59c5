package masterdata

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("master data record not found")
	// ErrDuplicateCode indicates another record already uses the code.
	ErrDuplicateCode = errors.New("code already taken")
)
