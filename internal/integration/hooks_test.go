package integration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellkorea/wellkorea-erp/internal/ap"
	"github.com/wellkorea/wellkorea-erp/internal/procurement"
	"github.com/wellkorea/wellkorea-erp/internal/quotation"
)

type fakeTx struct {
	pgx.Tx
}

// memPayables stores payables by cause so replay behaviour can be observed
// end to end.
type memPayables struct {
	rows          map[string]*ap.AccountsPayable
	txs           []pgx.Tx
	nextID        int64
	reportMissing bool
	existsErr     error
	insertErr     error
}

func newMemPayables() *memPayables {
	return &memPayables{rows: make(map[string]*ap.AccountsPayable)}
}

func (m *memPayables) ExistsByCauseTx(ctx context.Context, tx pgx.Tx, cause ap.DisbursementCause) (bool, error) {
	m.txs = append(m.txs, tx)
	if m.existsErr != nil {
		return false, m.existsErr
	}
	if m.reportMissing {
		return false, nil
	}
	_, ok := m.rows[cause.String()]
	return ok, nil
}

func (m *memPayables) InsertTx(ctx context.Context, tx pgx.Tx, p *ap.AccountsPayable) (int64, error) {
	m.txs = append(m.txs, tx)
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	if _, ok := m.rows[p.Cause.String()]; ok {
		return 0, ap.ErrDuplicateCause
	}
	m.nextID++
	cp := *p
	cp.ID = m.nextID
	m.rows[p.Cause.String()] = &cp
	return cp.ID, nil
}

func newHooksFixture() (*Hooks, *memPayables) {
	store := newMemPayables()
	h := NewHooks(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h, store
}

func confirmedEvent() procurement.ConfirmedEvent {
	return procurement.ConfirmedEvent{
		PurchaseOrderID: 42,
		PONumber:        "PO-2026-0007",
		VendorID:        7,
		TotalAmount:     350000,
		Currency:        "KRW",
		ActorID:         3,
		OccurredAt:      time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC),
	}
}

func TestHooks_PurchaseOrderConfirmedRaisesPayable(t *testing.T) {
	h, store := newHooksFixture()
	tx := &fakeTx{}

	require.NoError(t, h.OnPurchaseOrderConfirmed(context.Background(), tx, confirmedEvent()))

	require.Len(t, store.rows, 1)
	p := store.rows["PURCHASE_ORDER/42"]
	require.NotNil(t, p)
	assert.Equal(t, ap.CausePurchaseOrder, p.Cause.Type)
	assert.Equal(t, int64(42), p.Cause.ID)
	assert.Equal(t, "PO-2026-0007", p.Cause.Reference)
	assert.Equal(t, int64(7), p.VendorID)
	require.InDelta(t, 350000, p.TotalAmount, 0.001)
	assert.Equal(t, "KRW", p.Currency)
	assert.Equal(t, time.Date(2026, 6, 9, 14, 0, 0, 0, time.UTC), p.DueDate,
		"due date is net-30 from confirmation")

	for _, got := range store.txs {
		assert.Equal(t, tx, got, "store calls must run on the confirming transaction")
	}
}

func TestHooks_PurchaseOrderConfirmedTwiceCreatesOnePayable(t *testing.T) {
	h, store := newHooksFixture()
	tx := &fakeTx{}
	evt := confirmedEvent()

	require.NoError(t, h.OnPurchaseOrderConfirmed(context.Background(), tx, evt))
	require.NoError(t, h.OnPurchaseOrderConfirmed(context.Background(), tx, evt),
		"replay must succeed silently")

	assert.Len(t, store.rows, 1, "exactly one payable per purchase order")
}

func TestHooks_PurchaseOrderConfirmedSurvivesUniqueIndexRace(t *testing.T) {
	h, store := newHooksFixture()
	tx := &fakeTx{}
	evt := confirmedEvent()

	require.NoError(t, h.OnPurchaseOrderConfirmed(context.Background(), tx, evt))

	// A stale existence check slips past; the unique index catches the
	// duplicate and the hook still reports success.
	store.reportMissing = true
	require.NoError(t, h.OnPurchaseOrderConfirmed(context.Background(), tx, evt))
	assert.Len(t, store.rows, 1)
}

func TestHooks_PurchaseOrderConfirmedPropagatesFailures(t *testing.T) {
	h, store := newHooksFixture()
	tx := &fakeTx{}

	store.insertErr = errors.New("connection reset")
	err := h.OnPurchaseOrderConfirmed(context.Background(), tx, confirmedEvent())
	require.Error(t, err, "a failed insert must fail the confirming transaction")
	assert.Contains(t, err.Error(), "insert payable for PURCHASE_ORDER/42")

	store.insertErr = nil
	store.existsErr = errors.New("connection reset")
	err = h.OnPurchaseOrderConfirmed(context.Background(), tx, confirmedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check payable for PURCHASE_ORDER/42")
}

func TestHooks_QuotationAcceptedActivatesProject(t *testing.T) {
	h, _ := newHooksFixture()
	tx := &fakeTx{}

	var gotProject int64
	var gotTx pgx.Tx
	h.activateProject = func(ctx context.Context, tx pgx.Tx, projectID int64) (bool, error) {
		gotProject = projectID
		gotTx = tx
		return true, nil
	}

	evt := quotation.AcceptedEvent{QuotationID: 5, ProjectID: 11, Version: 2}
	require.NoError(t, h.OnQuotationAccepted(context.Background(), tx, evt))
	assert.Equal(t, int64(11), gotProject)
	assert.Equal(t, tx, gotTx, "activation must run on the accepting transaction")

	t.Run("already active is a no-op", func(t *testing.T) {
		h.activateProject = func(ctx context.Context, tx pgx.Tx, projectID int64) (bool, error) {
			return false, nil
		}
		require.NoError(t, h.OnQuotationAccepted(context.Background(), tx, evt))
	})

	t.Run("activation failure propagates", func(t *testing.T) {
		h.activateProject = func(ctx context.Context, tx pgx.Tx, projectID int64) (bool, error) {
			return false, errors.New("project gone")
		}
		err := h.OnQuotationAccepted(context.Background(), tx, evt)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "activate project 11")
	})
}
