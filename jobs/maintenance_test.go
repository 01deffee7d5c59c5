package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubKeyStore struct {
	windows []time.Duration
	err     error
}

func (s *stubKeyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	s.windows = append(s.windows, olderThan)
	return s.err
}

func cleanupTask(t *testing.T, retainDays int) *asynq.Task {
	t.Helper()
	task, err := NewIdempotencyCleanupTask(retainDays)
	require.NoError(t, err)
	return task
}

func TestIdempotencyCleanup_DefaultRetention(t *testing.T) {
	store := &stubKeyStore{}
	job := NewIdempotencyCleanupJob(store, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	require.NoError(t, job.Handle(context.Background(), cleanupTask(t, 0)))
	assert.Equal(t, []time.Duration{DefaultIdempotencyRetentionDays * 24 * time.Hour}, store.windows,
		"a zero payload falls back to the default retention")
}

func TestIdempotencyCleanup_PayloadOverridesRetention(t *testing.T) {
	store := &stubKeyStore{}
	job := NewIdempotencyCleanupJob(store, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	require.NoError(t, job.Handle(context.Background(), cleanupTask(t, 30)))
	assert.Equal(t, []time.Duration{30 * 24 * time.Hour}, store.windows)
}

func TestIdempotencyCleanup_StoreErrorRetries(t *testing.T) {
	store := &stubKeyStore{err: errors.New("connection reset")}
	job := NewIdempotencyCleanupJob(store, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	err := job.Handle(context.Background(), cleanupTask(t, 7))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}
