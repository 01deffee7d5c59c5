package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/wellkorea/wellkorea-erp/internal/jobs"
	"github.com/wellkorea/wellkorea-erp/internal/masterdata"
	"github.com/wellkorea/wellkorea-erp/internal/project"
	"github.com/wellkorea/wellkorea-erp/internal/quotation"
)

// QuotationLifecycle is the slice of the quotation service the dispatcher
// needs: load the row, confirm the send, or revert it.
type QuotationLifecycle interface {
	Get(ctx context.Context, id int64) (*quotation.Quotation, error)
	MarkSent(ctx context.Context, id int64) (*quotation.Quotation, error)
	MarkDispatchFailed(ctx context.Context, id int64, cause string) error
}

// ProjectSource resolves the project a quotation belongs to.
type ProjectSource interface {
	Get(ctx context.Context, id int64) (*project.Project, error)
}

// CustomerSource resolves the customer record carrying the contact email.
type CustomerSource interface {
	GetCustomer(ctx context.Context, id int64) (*masterdata.Customer, error)
}

// DocumentRenderer produces the customer-facing PDF.
type DocumentRenderer interface {
	RenderQuotation(ctx context.Context, q *quotation.Quotation) ([]byte, error)
}

// QuotationDispatchJob renders a SENDING quotation and mails it to the
// customer. Success confirms SENDING→SENT; any permanent failure reverts the
// row to APPROVED so the send can be repeated.
type QuotationDispatchJob struct {
	Quotations QuotationLifecycle
	Projects   ProjectSource
	Customers  CustomerSource
	Renderer   DocumentRenderer
	Mailer     Mailer
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// Handle executes one dispatch attempt.
func (j *QuotationDispatchJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Quotations == nil {
		return errors.New("quotation dispatch: handler not configured")
	}
	var payload QuotationDispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskTypeQuotationDispatch)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger.With(slog.Int64("quotation_id", payload.QuotationID))

	q, err := j.Quotations.Get(ctx, payload.QuotationID)
	if err != nil {
		if errors.Is(err, quotation.ErrNotFound) {
			logger.Warn("dispatch for unknown quotation")
			return asynq.SkipRetry
		}
		resultErr = err
		return resultErr
	}
	// Retried or duplicate deliveries land here once the row has moved on.
	if q.Status != quotation.StatusSending {
		logger.Info("quotation no longer sending, skipping dispatch",
			slog.String("status", string(q.Status)))
		return nil
	}

	proj, err := j.Projects.Get(ctx, q.ProjectID)
	if err != nil {
		resultErr = fmt.Errorf("load project %d: %w", q.ProjectID, err)
		return resultErr
	}
	customer, err := j.Customers.GetCustomer(ctx, proj.CustomerID)
	if err != nil {
		if errors.Is(err, masterdata.ErrNotFound) {
			resultErr = j.fail(ctx, logger, q.ID, fmt.Sprintf("customer %d not found", proj.CustomerID))
			return resultErr
		}
		resultErr = fmt.Errorf("load customer %d: %w", proj.CustomerID, err)
		return resultErr
	}
	if customer.Email == "" {
		resultErr = j.fail(ctx, logger, q.ID, fmt.Sprintf("customer %s has no email address", customer.Code))
		return resultErr
	}

	if j.Renderer == nil {
		resultErr = j.fail(ctx, logger, q.ID, "document renderer not configured")
		return resultErr
	}
	pdf, err := j.Renderer.RenderQuotation(ctx, q)
	if err != nil {
		resultErr = j.fail(ctx, logger, q.ID, fmt.Sprintf("render: %v", err))
		return resultErr
	}

	if j.Mailer == nil {
		resultErr = j.fail(ctx, logger, q.ID, "mailer not configured")
		return resultErr
	}
	msg := Mail{
		To:      customer.Email,
		Subject: fmt.Sprintf("WellKorea quotation %s rev %d", proj.JobCode, q.Version),
		Body: fmt.Sprintf("Dear %s,\n\nPlease find attached our quotation for %s.\nTotal amount: %.2f, valid for %d days from %s.\n\nWellKorea",
			customer.Name, proj.Name, q.TotalAmount, q.ValidityDays, q.QuoteDate.Format("2006-01-02")),
		Attachment:     pdf,
		AttachmentName: fmt.Sprintf("quotation-%s-rev%d.pdf", proj.JobCode, q.Version),
	}
	if err := j.Mailer.Send(ctx, msg); err != nil {
		resultErr = j.fail(ctx, logger, q.ID, fmt.Sprintf("mail: %v", err))
		return resultErr
	}

	if _, err := j.Quotations.MarkSent(ctx, q.ID); err != nil {
		// The mail is out; retrying only repeats the status confirmation.
		resultErr = fmt.Errorf("mark sent: %w", err)
		return resultErr
	}
	logger.Info("quotation dispatched", slog.String("to", customer.Email))
	return nil
}

// fail reverts the quotation so Send can be retried and stops asynq from
// re-running a task whose row is no longer SENDING.
func (j *QuotationDispatchJob) fail(ctx context.Context, logger *slog.Logger, id int64, cause string) error {
	logger.Error("quotation dispatch failed", slog.String("cause", cause))
	if err := j.Quotations.MarkDispatchFailed(ctx, id, cause); err != nil {
		logger.Error("revert quotation after dispatch failure", slog.Any("error", err))
		return fmt.Errorf("revert quotation %d: %w", id, err)
	}
	return fmt.Errorf("quotation dispatch: %s: %w", cause, asynq.SkipRetry)
}
