package quotation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allowedPairs is written out by hand, independently of the transitions map,
// so the matrix test fails if either side drifts.
var allowedPairs = map[[2]Status]bool{
	{StatusDraft, StatusPending}:    true,
	{StatusPending, StatusApproved}: true,
	{StatusPending, StatusRejected}: true,
	{StatusApproved, StatusSending}: true,
	{StatusSending, StatusSent}:     true,
	{StatusSending, StatusApproved}: true, // dispatch failure revert
	{StatusSent, StatusAccepted}:    true,
}

func TestStatus_TransitionMatrix(t *testing.T) {
	statuses := AllStatuses()
	require.Len(t, statuses, 7)

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowedPairs[[2]Status{from, to}]
			got := from.CanTransitionTo(to)
			assert.Equalf(t, want, got, "transition %s -> %s", from, to)
		}
	}
}

func TestStatus_TransitionToUnknownStatus(t *testing.T) {
	q := &Quotation{Status: StatusDraft}
	err := q.TransitionTo(Status("SHIPPED"))
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusDraft, q.Status)
}

func TestStatus_TransitionToRejectsIllegalPair(t *testing.T) {
	q := &Quotation{Status: StatusDraft}
	err := q.TransitionTo(StatusApproved)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "from DRAFT to APPROVED")
	assert.Equal(t, StatusDraft, q.Status)
}

func TestStatus_TransitionToMutatesOnSuccess(t *testing.T) {
	q := &Quotation{Status: StatusDraft}
	require.NoError(t, q.TransitionTo(StatusPending))
	assert.Equal(t, StatusPending, q.Status)
}

func TestStatus_TerminalStatesHaveNoExits(t *testing.T) {
	for _, from := range []Status{StatusRejected, StatusAccepted} {
		assert.True(t, from.IsTerminal(), "%s should be terminal", from)
		for _, to := range AllStatuses() {
			assert.Falsef(t, from.CanTransitionTo(to), "terminal %s must not reach %s", from, to)
		}
	}
}

func TestStatus_Helpers(t *testing.T) {
	tests := []struct {
		status        Status
		canEdit       bool
		canDeliver    bool
		allowsVersion bool
		allowsDoc     bool
	}{
		{StatusDraft, true, false, false, false},
		{StatusPending, false, false, false, true},
		{StatusApproved, false, true, true, true},
		{StatusSending, false, true, false, true},
		{StatusSent, false, true, true, true},
		{StatusAccepted, false, true, true, true},
		{StatusRejected, false, false, true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.canEdit, tt.status.CanEdit(), "CanEdit")
			assert.Equal(t, tt.canDeliver, tt.status.CanDeliver(), "CanDeliver")
			assert.Equal(t, tt.allowsVersion, tt.status.AllowsNewVersion(), "AllowsNewVersion")
			assert.Equal(t, tt.allowsDoc, tt.status.AllowsDocument(), "AllowsDocument")
		})
	}
}

func TestQuotation_SetLinesComputesTotal(t *testing.T) {
	q := &Quotation{Status: StatusDraft}
	err := q.SetLines([]LineItem{
		{ProductID: 1, Quantity: 3, UnitPrice: 1500.50},
		{ProductID: 2, Quantity: 2, UnitPrice: 200},
	})
	require.NoError(t, err)
	require.InDelta(t, 3*1500.50+2*200, q.TotalAmount, 0.001)

	require.Len(t, q.Lines, 2)
	assert.Equal(t, 1, q.Lines[0].LineNo)
	assert.Equal(t, 2, q.Lines[1].LineNo)
}

func TestQuotation_SetLinesRejectsNonDraft(t *testing.T) {
	q := &Quotation{Status: StatusPending}
	err := q.SetLines([]LineItem{{ProductID: 1, Quantity: 1, UnitPrice: 10}})
	require.ErrorIs(t, err, ErrNotEditable)
}

func TestQuotation_SetLinesValidation(t *testing.T) {
	tests := []struct {
		name  string
		lines []LineItem
	}{
		{"missing product", []LineItem{{ProductID: 0, Quantity: 1, UnitPrice: 10}}},
		{"zero quantity", []LineItem{{ProductID: 1, Quantity: 0, UnitPrice: 10}}},
		{"negative quantity", []LineItem{{ProductID: 1, Quantity: -5, UnitPrice: 10}}},
		{"negative price", []LineItem{{ProductID: 1, Quantity: 1, UnitPrice: -0.01}}},
		{"duplicate product", []LineItem{
			{ProductID: 7, Quantity: 1, UnitPrice: 10},
			{ProductID: 7, Quantity: 2, UnitPrice: 20},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &Quotation{Status: StatusDraft}
			err := q.SetLines(tt.lines)
			require.ErrorIs(t, err, ErrInvalidLine)
		})
	}
}

func TestQuotation_CanSubmitRequiresLines(t *testing.T) {
	q := &Quotation{Status: StatusDraft}
	require.ErrorIs(t, q.CanSubmit(), ErrNoLineItems)

	q.Lines = []LineItem{{ProductID: 1, Quantity: 1, UnitPrice: 10, LineNo: 1}}
	require.NoError(t, q.CanSubmit())

	q.Status = StatusApproved
	require.ErrorIs(t, q.CanSubmit(), ErrInvalidTransition)
}

func TestQuotation_NewVersion(t *testing.T) {
	approvedAt := time.Now().Add(-time.Hour)
	approver := int64(9)
	src := &Quotation{
		ID:           41,
		ProjectID:    5,
		Version:      2,
		Status:       StatusRejected,
		ValidityDays: 30,
		TotalAmount:  999,
		CreatedBy:    3,
		ApprovedAt:   &approvedAt,
		ApproverID:   &approver,
		Lines: []LineItem{
			{ID: 100, QuotationID: 41, ProductID: 1, Quantity: 2, UnitPrice: 250, LineNo: 1},
			{ID: 101, QuotationID: 41, ProductID: 2, Quantity: 1, UnitPrice: 499, LineNo: 2},
		},
	}

	quoteDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	next, err := src.NewVersion(7, quoteDate)
	require.NoError(t, err)

	assert.Equal(t, int64(0), next.ID)
	assert.Equal(t, src.ProjectID, next.ProjectID)
	assert.Equal(t, 3, next.Version)
	assert.Equal(t, StatusDraft, next.Status)
	assert.Equal(t, int64(7), next.CreatedBy)
	assert.Equal(t, quoteDate, next.QuoteDate)
	assert.Nil(t, next.ApprovedAt)
	assert.Nil(t, next.ApproverID)
	assert.Nil(t, next.SubmittedAt)
	assert.Nil(t, next.RejectionReason)
	require.InDelta(t, 999, next.TotalAmount, 0.001)

	require.Len(t, next.Lines, 2)
	for i, ln := range next.Lines {
		assert.Equal(t, int64(0), ln.ID, "line %d keeps no row identity", i)
		assert.Equal(t, int64(0), ln.QuotationID)
	}

	// Source row must be untouched.
	assert.Equal(t, StatusRejected, src.Status)
	assert.Equal(t, int64(100), src.Lines[0].ID)
}

func TestQuotation_NewVersionBlockedWhileOpen(t *testing.T) {
	for _, status := range []Status{StatusDraft, StatusPending, StatusSending} {
		t.Run(string(status), func(t *testing.T) {
			src := &Quotation{ID: 1, ProjectID: 1, Version: 1, Status: status}
			_, err := src.NewVersion(1, time.Now())
			require.ErrorIs(t, err, ErrVersionNotAllowed)
		})
	}
}
