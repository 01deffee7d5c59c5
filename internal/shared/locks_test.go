package shared

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, nil), mr
}

func TestLockerAcquireAndRelease(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	handle, err := locker.Acquire(ctx, QuotationLockKey(42), time.Minute, time.Second)
	require.NoError(t, err)
	require.Equal(t, "lock:quotation:42", handle.Key())

	require.NoError(t, handle.Release(ctx))

	// Released lock is immediately available again.
	again, err := locker.Acquire(ctx, QuotationLockKey(42), time.Minute, time.Second)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLockerSecondCallerWaitsForRelease(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()
	key := QuotationLockKey(7)

	first, err := locker.Acquire(ctx, key, time.Minute, time.Second)
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		events   []string
		acquired = make(chan struct{})
	)
	record := func(ev string) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}

	go func() {
		second, err := locker.Acquire(ctx, key, time.Minute, 2*time.Second)
		if err == nil {
			record("second-acquired")
			_ = second.Release(ctx)
		}
		close(acquired)
	}()

	// Give the contender time to start spinning, then release.
	time.Sleep(100 * time.Millisecond)
	record("first-released")
	require.NoError(t, first.Release(ctx))

	select {
	case <-acquired:
	case <-time.After(3 * time.Second):
		t.Fatal("second caller never acquired the lock")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first-released", "second-acquired"}, events)
}

func TestLockerTimeoutIsDistinctError(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()
	key := QuotationLockKey(9)

	holder, err := locker.Acquire(ctx, key, time.Minute, time.Second)
	require.NoError(t, err)
	defer func() { _ = holder.Release(ctx) }()

	_, err = locker.Acquire(ctx, key, time.Minute, 80*time.Millisecond)
	require.ErrorIs(t, err, ErrLockTimeout)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestLockerDifferentKeysDoNotContend(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	a, err := locker.Acquire(ctx, QuotationLockKey(1), time.Minute, 50*time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = a.Release(ctx) }()

	// A held lock on quotation 1 must not delay quotation 2 at all.
	start := time.Now()
	b, err := locker.Acquire(ctx, QuotationLockKey(2), time.Minute, 50*time.Millisecond)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.NoError(t, b.Release(ctx))
}

func TestLockerReleaseAfterExpiryReportsNotHeld(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	handle, err := locker.Acquire(ctx, QuotationLockKey(3), 50*time.Millisecond, time.Second)
	require.NoError(t, err)

	mr.FastForward(time.Second)

	require.ErrorIs(t, handle.Release(ctx), ErrLockNotHeld)
}

func TestLockerExpiredLockIsNotReleasedByOldOwner(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	key := QuotationLockKey(5)

	old, err := locker.Acquire(ctx, key, 50*time.Millisecond, time.Second)
	require.NoError(t, err)

	mr.FastForward(time.Second)

	current, err := locker.Acquire(ctx, key, time.Minute, time.Second)
	require.NoError(t, err)

	// The stale handle must not delete the new owner's key.
	require.ErrorIs(t, old.Release(ctx), ErrLockNotHeld)
	require.True(t, mr.Exists(key))
	require.NoError(t, current.Release(ctx))
}
