package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/wellkorea/wellkorea-erp/internal/ap"
	jobmetrics "github.com/wellkorea/wellkorea-erp/internal/jobs"
)

// DefaultDueSoonHorizonDays is the scan window used when the cron payload
// does not override it.
const DefaultDueSoonHorizonDays = 7

// PayableScanner is the slice of the payable service the scan needs.
type PayableScanner interface {
	DueWithin(ctx context.Context, days int) ([]ap.PayableDetail, error)
}

// APDueSoonJob surfaces open payables approaching their due date. It only
// warns in the log; the payment decision stays with finance.
type APDueSoonJob struct {
	Payables PayableScanner
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewAPDueSoonJob initialises the due-soon scan handler.
func NewAPDueSoonJob(payables PayableScanner, logger *slog.Logger, metrics *jobmetrics.Metrics) *APDueSoonJob {
	return &APDueSoonJob{
		Payables: payables,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one scan.
func (j *APDueSoonJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Payables == nil {
		return errors.New("ap due-soon: handler not configured")
	}
	var payload APDueSoonPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.HorizonDays <= 0 {
		payload.HorizonDays = DefaultDueSoonHorizonDays
	}

	tracker := j.Metrics.Track(TaskTypeAPDueSoon)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	items, err := j.Payables.DueWithin(ctx, payload.HorizonDays)
	if err != nil {
		resultErr = err
		return resultErr
	}

	now := j.clock()
	for _, p := range items {
		level := slog.LevelWarn
		if p.DueDate.Before(now) {
			level = slog.LevelError
		}
		j.Logger.Log(ctx, level, "payable due soon",
			slog.Int64("payable_id", p.ID),
			slog.String("cause", p.Cause.String()),
			slog.Int64("vendor_id", p.VendorID),
			slog.Float64("balance", p.Balance),
			slog.String("currency", p.Currency),
			slog.Time("due_date", p.DueDate))
	}
	j.Logger.Info("payable due-soon scan finished",
		slog.Int("horizon_days", payload.HorizonDays),
		slog.Int("open_payables", len(items)))
	return nil
}
