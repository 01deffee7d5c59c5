package shared

import "errors"

var (
	// ErrInvalidCredentials indicates a failed login attempt.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLockTimeout indicates a distributed lock could not be acquired
	// within the configured wait. Distinct from business errors: the
	// operation was never started and is safe to retry after backoff.
	ErrLockTimeout = errors.New("lock acquisition timed out")
	// ErrLockNotHeld indicates a release attempt for a lock this process
	// does not own (expired TTL or double release).
	ErrLockNotHeld = errors.New("lock not held")
)
