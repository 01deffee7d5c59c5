package ap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_DerivedFromPayments(t *testing.T) {
	cancelled := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		total     float64
		paid      float64
		cancelled bool
		want      Status
	}{
		{"nothing paid", 1000, 0, false, StatusPending},
		{"partially paid", 1000, 400, false, StatusPartiallyPaid},
		{"fully paid", 1000, 1000, false, StatusPaid},
		{"paid in fractional steps", 0.3, 0.1 + 0.2, false, StatusPaid},
		{"one unit short", 1000, 999, false, StatusPartiallyPaid},
		{"cancelled wins over paid", 1000, 1000, true, StatusCancelled},
		{"cancelled while pending", 1000, 0, true, StatusCancelled},
		{"zero total stays pending", 0, 0, false, StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &AccountsPayable{TotalAmount: tc.total}
			if tc.cancelled {
				p.CancelledAt = &cancelled
			}
			assert.Equal(t, tc.want, p.StatusFor(tc.paid))
		})
	}
}

func TestPayable_CanAcceptPayment(t *testing.T) {
	p := &AccountsPayable{ID: 5, TotalAmount: 100}

	t.Run("partial payment ok", func(t *testing.T) {
		require.NoError(t, p.CanAcceptPayment(0, 60))
	})

	t.Run("exactly the open balance ok", func(t *testing.T) {
		require.NoError(t, p.CanAcceptPayment(60, 40))
	})

	t.Run("fractional exact balance ok", func(t *testing.T) {
		frac := &AccountsPayable{ID: 6, TotalAmount: 0.3}
		require.NoError(t, frac.CanAcceptPayment(0.1, 0.2))
	})

	t.Run("overshoot rejected", func(t *testing.T) {
		err := p.CanAcceptPayment(60, 50)
		require.ErrorIs(t, err, ErrOverPayment)
		assert.Contains(t, err.Error(), "total 100")
		assert.Contains(t, err.Error(), "already paid 60")
		assert.Contains(t, err.Error(), "requested 50")
	})

	t.Run("non-positive rejected", func(t *testing.T) {
		require.ErrorIs(t, p.CanAcceptPayment(0, 0), ErrNonPositiveAmount)
		require.ErrorIs(t, p.CanAcceptPayment(0, -10), ErrNonPositiveAmount)
	})

	t.Run("cancelled rejected", func(t *testing.T) {
		now := time.Now()
		gone := &AccountsPayable{ID: 7, TotalAmount: 100, CancelledAt: &now}
		require.ErrorIs(t, gone.CanAcceptPayment(0, 10), ErrCancelled)
	})
}

func TestDisbursementCause_Validate(t *testing.T) {
	require.NoError(t, DisbursementCause{Type: CauseExpenseReport, ID: 12}.Validate())

	err := DisbursementCause{Type: "GIFT", ID: 12}.Validate()
	require.ErrorIs(t, err, ErrUnknownCauseType)

	err = DisbursementCause{Type: CauseDirectInvoice, ID: 0}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-positive cause id")

	assert.Equal(t, "PURCHASE_ORDER/42", DisbursementCause{Type: CausePurchaseOrder, ID: 42}.String())
	assert.Len(t, AllCauseTypes(), 5)
}
