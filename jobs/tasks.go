package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskTypeQuotationDispatch renders an approved quotation and mails it
	// to the customer.
	TaskTypeQuotationDispatch = "quotation:dispatch"
	// TaskTypeAPDueSoon scans accounts payable for invoices approaching
	// their due date. Scheduled by cron.
	TaskTypeAPDueSoon = "ap:due-soon"
	// TaskTypeIdempotencyCleanup trims expired idempotency keys. Scheduled
	// by cron.
	TaskTypeIdempotencyCleanup = "maintenance:idempotency-cleanup"
	// TaskTypeSendEmail is the generic transactional email task.
	TaskTypeSendEmail = "mail:send"
)

// QuotationDispatchPayload identifies the quotation to dispatch.
type QuotationDispatchPayload struct {
	QuotationID int64 `json:"quotation_id"`
}

// NewQuotationDispatchTask constructs the dispatch task for one quotation.
func NewQuotationDispatchTask(quotationID int64) (*asynq.Task, error) {
	data, err := json.Marshal(QuotationDispatchPayload{QuotationID: quotationID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeQuotationDispatch, data, asynq.Queue(QueueDefault)), nil
}

// APDueSoonPayload configures the payable scan horizon.
type APDueSoonPayload struct {
	HorizonDays int `json:"horizon_days"`
}

// NewAPDueSoonTask constructs the due-soon scan task.
func NewAPDueSoonTask(horizonDays int) (*asynq.Task, error) {
	data, err := json.Marshal(APDueSoonPayload{HorizonDays: horizonDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAPDueSoon, data, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload configures the key retention window.
type IdempotencyCleanupPayload struct {
	RetainDays int `json:"retain_days"`
}

// NewIdempotencyCleanupTask constructs the idempotency key cleanup task.
func NewIdempotencyCleanupTask(retainDays int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetainDays: retainDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeIdempotencyCleanup, data, asynq.Queue(QueueDefault)), nil
}

// Mail is one outbound message handed to the mailer collaborator.
type Mail struct {
	To             string `json:"to"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	Attachment     []byte `json:"attachment,omitempty"`
	AttachmentName string `json:"attachment_name,omitempty"`
}

// Mailer delivers outbound mail. Transport details stay behind this
// interface.
type Mailer interface {
	Send(ctx context.Context, msg Mail) error
}

// LogMailer records outbound mail in the application log instead of
// delivering it. It stands in until an SMTP relay is configured.
type LogMailer struct {
	Logger *slog.Logger
	From   string
}

func (m LogMailer) Send(ctx context.Context, msg Mail) error {
	m.Logger.Info("outbound mail",
		slog.String("from", m.From),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("attachment_bytes", len(msg.Attachment)))
	return nil
}

// NewSendEmailTask constructs the generic email task.
func NewSendEmailTask(msg Mail) (*asynq.Task, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.Queue(QueueDefault)), nil
}

// newSendEmailHandler processes TaskTypeSendEmail through the mailer.
func newSendEmailHandler(mailer Mailer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var msg Mail
		if err := json.Unmarshal(t.Payload(), &msg); err != nil {
			return asynq.SkipRetry
		}
		return mailer.Send(ctx, msg)
	}
}
