package shared

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker provides named mutual exclusion across application instances,
// backed by Redis SET NX PX. A lock is acquired before the database
// transaction it protects begins and released only after commit or
// rollback, so two contenders for the same key never interleave their
// transactions.
type Locker struct {
	client *redis.Client
	logger *slog.Logger
}

// LockHandle represents a held lock. Release must be called exactly once.
type LockHandle struct {
	key    string
	token  string
	locker *Locker
}

const lockRetryInterval = 25 * time.Millisecond

// releaseScript deletes the key only when it still carries our token, so an
// expired-and-reacquired lock is never released out from under its new owner.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// NewLocker constructs a Locker.
func NewLocker(client *redis.Client, logger *slog.Logger) *Locker {
	return &Locker{client: client, logger: logger}
}

// Acquire blocks until the named lock is granted or wait elapses. The TTL
// bounds how long a crashed holder can keep the key; a live holder is
// expected to finish well within it. On timeout the returned error wraps
// ErrLockTimeout so callers can distinguish contention from business
// failures.
func (l *Locker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (*LockHandle, error) {
	if key == "" {
		return nil, fmt.Errorf("shared/locks: empty lock key")
	}
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("shared/locks: acquire %s: %w", key, err)
		}
		if ok {
			return &LockHandle{key: key, token: token, locker: l}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("shared/locks: %s: %w", key, ErrLockTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("shared/locks: acquire %s: %w", key, ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}
}

// Release frees the lock if this handle still owns it.
func (h *LockHandle) Release(ctx context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	res, err := releaseScript.Run(ctx, h.locker.client, []string{h.key}, h.token).Int()
	if err != nil {
		return fmt.Errorf("shared/locks: release %s: %w", h.key, err)
	}
	if res == 0 {
		if h.locker.logger != nil {
			h.locker.logger.Warn("lock already expired at release", slog.String("key", h.key))
		}
		return ErrLockNotHeld
	}
	return nil
}

// Key returns the lock key, for logging.
func (h *LockHandle) Key() string {
	if h == nil {
		return ""
	}
	return h.key
}

// QuotationLockKey names the exclusivity lock serializing all mutating
// operations against one quotation.
func QuotationLockKey(quotationID int64) string {
	return fmt.Sprintf("lock:quotation:%d", quotationID)
}
