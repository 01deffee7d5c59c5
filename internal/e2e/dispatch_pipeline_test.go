package e2e

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/wellkorea/wellkorea-erp/internal/jobs"
	"github.com/wellkorea/wellkorea-erp/internal/masterdata"
	"github.com/wellkorea/wellkorea-erp/internal/project"
	"github.com/wellkorea/wellkorea-erp/internal/quotation"
	"github.com/wellkorea/wellkorea-erp/jobs"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubLifecycle struct {
	quote    *quotation.Quotation
	sent     []int64
	failures []string
}

func (s *stubLifecycle) Get(_ context.Context, id int64) (*quotation.Quotation, error) {
	if s.quote == nil || s.quote.ID != id {
		return nil, quotation.ErrNotFound
	}
	cp := *s.quote
	return &cp, nil
}

func (s *stubLifecycle) MarkSent(_ context.Context, id int64) (*quotation.Quotation, error) {
	s.sent = append(s.sent, id)
	cp := *s.quote
	cp.Status = quotation.StatusSent
	return &cp, nil
}

func (s *stubLifecycle) MarkDispatchFailed(_ context.Context, id int64, cause string) error {
	s.failures = append(s.failures, cause)
	s.quote.Status = quotation.StatusApproved
	return nil
}

type stubProjects struct {
	project *project.Project
}

func (s *stubProjects) Get(_ context.Context, id int64) (*project.Project, error) {
	if s.project == nil || s.project.ID != id {
		return nil, project.ErrNotFound
	}
	cp := *s.project
	return &cp, nil
}

type stubCustomers struct {
	customer *masterdata.Customer
}

func (s *stubCustomers) GetCustomer(_ context.Context, id int64) (*masterdata.Customer, error) {
	if s.customer == nil || s.customer.ID != id {
		return nil, masterdata.ErrNotFound
	}
	cp := *s.customer
	return &cp, nil
}

type stubRenderer struct {
	pdf []byte
	err error
}

func (s *stubRenderer) RenderQuotation(_ context.Context, _ *quotation.Quotation) ([]byte, error) {
	return s.pdf, s.err
}

type memMailer struct {
	mails []jobs.Mail
}

func (m *memMailer) Send(_ context.Context, msg jobs.Mail) error {
	m.mails = append(m.mails, msg)
	return nil
}

func dispatchFixture() (*stubLifecycle, *stubProjects, *stubCustomers, *memMailer) {
	lifecycle := &stubLifecycle{quote: &quotation.Quotation{
		ID:           41,
		ProjectID:    7,
		Version:      2,
		Status:       quotation.StatusSending,
		QuoteDate:    time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC),
		ValidityDays: 30,
		TotalAmount:  1250000,
	}}
	projects := &stubProjects{project: &project.Project{
		ID: 7, JobCode: "WK-2026-0007", Name: "Hanbit press line", CustomerID: 3,
	}}
	customers := &stubCustomers{customer: &masterdata.Customer{
		ID: 3, Code: "HANBIT", Name: "Hanbit Machinery", Email: "order@hanbit.example",
	}}
	return lifecycle, projects, customers, &memMailer{}
}

func TestQuotationDispatchPipeline(t *testing.T) {
	lifecycle, projects, customers, mailer := dispatchFixture()
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	job := &jobs.QuotationDispatchJob{
		Quotations: lifecycle,
		Projects:   projects,
		Customers:  customers,
		Renderer:   &stubRenderer{pdf: []byte("%PDF-1.7 stub")},
		Mailer:     mailer,
		Logger:     discardLogger(),
		Metrics:    metrics,
	}
	task, err := jobs.NewQuotationDispatchTask(41)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("job handle: %v", err)
	}
	if len(mailer.mails) != 1 {
		t.Fatalf("expected 1 outbound mail, got %d", len(mailer.mails))
	}
	mail := mailer.mails[0]
	if mail.To != "order@hanbit.example" {
		t.Fatalf("expected mail to customer contact, got %s", mail.To)
	}
	if mail.AttachmentName != "quotation-WK-2026-0007-rev2.pdf" {
		t.Fatalf("unexpected attachment name %s", mail.AttachmentName)
	}
	if len(lifecycle.sent) != 1 || lifecycle.sent[0] != 41 {
		t.Fatalf("expected quotation 41 confirmed sent, got %v", lifecycle.sent)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if !assertCounter(t, families, "wellkorea_jobs_total", map[string]string{"job": jobs.TaskTypeQuotationDispatch, "status": "success"}, 1) {
		t.Fatalf("expected wellkorea_jobs_total increment for quotation dispatch")
	}
	if !metricExists(families, "wellkorea_job_duration_seconds") {
		t.Fatalf("expected wellkorea_job_duration_seconds to be recorded")
	}
}

func TestQuotationDispatchPipelineRevertsOnMissingContact(t *testing.T) {
	lifecycle, projects, customers, mailer := dispatchFixture()
	customers.customer.Email = ""
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	job := &jobs.QuotationDispatchJob{
		Quotations: lifecycle,
		Projects:   projects,
		Customers:  customers,
		Renderer:   &stubRenderer{pdf: []byte("%PDF-1.7 stub")},
		Mailer:     mailer,
		Logger:     discardLogger(),
		Metrics:    metrics,
	}
	task, err := jobs.NewQuotationDispatchTask(41)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	err = job.Handle(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry after permanent failure, got %v", err)
	}
	if len(mailer.mails) != 0 {
		t.Fatalf("expected no mail, got %d", len(mailer.mails))
	}
	if len(lifecycle.failures) != 1 || !strings.Contains(lifecycle.failures[0], "no email") {
		t.Fatalf("expected revert with missing-email cause, got %v", lifecycle.failures)
	}
	if lifecycle.quote.Status != quotation.StatusApproved {
		t.Fatalf("expected quotation reverted to APPROVED, got %s", lifecycle.quote.Status)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if !assertCounter(t, families, "wellkorea_jobs_total", map[string]string{"job": jobs.TaskTypeQuotationDispatch, "status": "failure"}, 1) {
		t.Fatalf("expected failure count for quotation dispatch")
	}
	if !assertCounter(t, families, "wellkorea_jobs_failures_total", map[string]string{"job": jobs.TaskTypeQuotationDispatch}, 1) {
		t.Fatalf("expected wellkorea_jobs_failures_total increment")
	}
}

func assertCounter(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string, expected float64) bool {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				if metric.GetCounter() == nil {
					return false
				}
				if metric.GetCounter().GetValue() == expected {
					return true
				}
			}
		}
	}
	return false
}

func metricExists(families []*dto.MetricFamily, name string) bool {
	for _, fam := range families {
		if fam.GetName() == name {
			return true
		}
	}
	return false
}

func matchLabels(pairs []*dto.LabelPair, expected map[string]string) bool {
	if len(expected) == 0 {
		return true
	}
	seen := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		seen[pair.GetName()] = pair.GetValue()
	}
	for k, v := range expected {
		if seen[k] != v {
			return false
		}
	}
	return true
}
