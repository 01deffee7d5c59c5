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

	"github.com/wellkorea/wellkorea-erp/internal/masterdata"
	"github.com/wellkorea/wellkorea-erp/internal/project"
	"github.com/wellkorea/wellkorea-erp/internal/quotation"
)

type stubLifecycle struct {
	quotation *quotation.Quotation
	getErr    error

	sent     []int64
	reverted []int64
	causes   []string
}

func (s *stubLifecycle) Get(ctx context.Context, id int64) (*quotation.Quotation, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	cp := *s.quotation
	return &cp, nil
}

func (s *stubLifecycle) MarkSent(ctx context.Context, id int64) (*quotation.Quotation, error) {
	s.sent = append(s.sent, id)
	cp := *s.quotation
	cp.Status = quotation.StatusSent
	return &cp, nil
}

func (s *stubLifecycle) MarkDispatchFailed(ctx context.Context, id int64, cause string) error {
	s.reverted = append(s.reverted, id)
	s.causes = append(s.causes, cause)
	return nil
}

type stubProjects struct{ project *project.Project }

func (s stubProjects) Get(ctx context.Context, id int64) (*project.Project, error) {
	cp := *s.project
	return &cp, nil
}

type stubCustomers struct {
	customer *masterdata.Customer
	err      error
}

func (s stubCustomers) GetCustomer(ctx context.Context, id int64) (*masterdata.Customer, error) {
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.customer
	return &cp, nil
}

type stubRenderer struct {
	pdf []byte
	err error
}

func (s stubRenderer) RenderQuotation(ctx context.Context, q *quotation.Quotation) ([]byte, error) {
	return s.pdf, s.err
}

type captureMailer struct {
	sent []Mail
	err  error
}

func (m *captureMailer) Send(ctx context.Context, msg Mail) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func dispatchFixture() (*QuotationDispatchJob, *stubLifecycle, *captureMailer) {
	lifecycle := &stubLifecycle{
		quotation: &quotation.Quotation{
			ID:           41,
			ProjectID:    7,
			Version:      2,
			Status:       quotation.StatusSending,
			QuoteDate:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			ValidityDays: 30,
			TotalAmount:  1250000,
		},
	}
	mailer := &captureMailer{}
	job := &QuotationDispatchJob{
		Quotations: lifecycle,
		Projects: stubProjects{project: &project.Project{
			ID: 7, JobCode: "WK-2026-0007", Name: "Press line retrofit", CustomerID: 3,
		}},
		Customers: stubCustomers{customer: &masterdata.Customer{
			ID: 3, Code: "HBM", Name: "Hanbit Machinery", Email: "order@hanbit.example",
		}},
		Renderer: stubRenderer{pdf: []byte("%PDF-1.7 fake")},
		Mailer:   mailer,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return job, lifecycle, mailer
}

func dispatchTask(t *testing.T, quotationID int64) *asynq.Task {
	t.Helper()
	task, err := NewQuotationDispatchTask(quotationID)
	require.NoError(t, err)
	return task
}

func TestQuotationDispatch_SendsAndConfirms(t *testing.T) {
	job, lifecycle, mailer := dispatchFixture()

	err := job.Handle(context.Background(), dispatchTask(t, 41))
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, "order@hanbit.example", msg.To)
	assert.Contains(t, msg.Subject, "WK-2026-0007")
	assert.Contains(t, msg.Subject, "rev 2")
	assert.Equal(t, "quotation-WK-2026-0007-rev2.pdf", msg.AttachmentName)
	assert.NotEmpty(t, msg.Attachment)

	assert.Equal(t, []int64{41}, lifecycle.sent)
	assert.Empty(t, lifecycle.reverted)
}

func TestQuotationDispatch_RenderFailureReverts(t *testing.T) {
	job, lifecycle, mailer := dispatchFixture()
	job.Renderer = stubRenderer{err: errors.New("gotenberg unreachable")}

	err := job.Handle(context.Background(), dispatchTask(t, 41))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry, "a reverted quotation must not be retried by the queue")

	assert.Empty(t, mailer.sent)
	assert.Empty(t, lifecycle.sent)
	require.Equal(t, []int64{41}, lifecycle.reverted)
	assert.Contains(t, lifecycle.causes[0], "gotenberg unreachable")
}

func TestQuotationDispatch_MailFailureReverts(t *testing.T) {
	job, lifecycle, mailer := dispatchFixture()
	mailer.err = errors.New("relay refused connection")

	err := job.Handle(context.Background(), dispatchTask(t, 41))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	assert.Empty(t, lifecycle.sent)
	require.Len(t, lifecycle.causes, 1)
	assert.Contains(t, lifecycle.causes[0], "relay refused connection")
}

func TestQuotationDispatch_MissingEmailReverts(t *testing.T) {
	job, lifecycle, _ := dispatchFixture()
	job.Customers = stubCustomers{customer: &masterdata.Customer{ID: 3, Code: "HBM", Name: "Hanbit Machinery"}}

	err := job.Handle(context.Background(), dispatchTask(t, 41))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	require.Len(t, lifecycle.causes, 1)
	assert.Contains(t, lifecycle.causes[0], "no email address")
}

func TestQuotationDispatch_SkipsRowsNoLongerSending(t *testing.T) {
	job, lifecycle, mailer := dispatchFixture()
	lifecycle.quotation.Status = quotation.StatusSent

	err := job.Handle(context.Background(), dispatchTask(t, 41))
	require.NoError(t, err, "a duplicate delivery after MarkSent must be a no-op")

	assert.Empty(t, mailer.sent)
	assert.Empty(t, lifecycle.sent)
	assert.Empty(t, lifecycle.reverted)
}

func TestQuotationDispatch_TransientLoadErrorRetries(t *testing.T) {
	job, lifecycle, _ := dispatchFixture()
	lifecycle.getErr = errors.New("connection reset")

	err := job.Handle(context.Background(), dispatchTask(t, 41))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry, "transient load failures should stay retryable")
}

func TestQuotationDispatch_UnknownQuotationIsDropped(t *testing.T) {
	job, lifecycle, _ := dispatchFixture()
	lifecycle.getErr = quotation.ErrNotFound

	err := job.Handle(context.Background(), dispatchTask(t, 404))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
