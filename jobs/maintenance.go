package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/wellkorea/wellkorea-erp/internal/jobs"
)

// DefaultIdempotencyRetentionDays keeps keys long past any sane client
// retry window before the cleanup drops them.
const DefaultIdempotencyRetentionDays = 7

// KeyStore is the slice of the idempotency store the cleanup needs.
type KeyStore interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob trims expired idempotency keys so the table does
// not grow without bound.
type IdempotencyCleanupJob struct {
	Keys    KeyStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob initialises the cleanup handler.
func NewIdempotencyCleanupJob(keys KeyStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Keys: keys, Logger: logger, Metrics: metrics}
}

// Handle executes one cleanup pass.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Keys == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetainDays <= 0 {
		payload.RetainDays = DefaultIdempotencyRetentionDays
	}

	tracker := j.Metrics.Track(TaskTypeIdempotencyCleanup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if err := j.Keys.Cleanup(ctx, time.Duration(payload.RetainDays)*24*time.Hour); err != nil {
		resultErr = err
		return resultErr
	}
	j.Logger.Info("idempotency keys cleaned",
		slog.Int("retain_days", payload.RetainDays))
	return nil
}
