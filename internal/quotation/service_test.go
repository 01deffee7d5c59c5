package quotation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellkorea/wellkorea-erp/internal/shared"
)

// fakeTx stands in for the open transaction handed to integration hooks.
type fakeTx struct {
	pgx.Tx
}

// memoryRepo is an in-memory Repository/TxRepository. WithTx serializes
// callers and restores a snapshot when fn fails, mirroring rollback.
type memoryRepo struct {
	mu      sync.Mutex
	nextID  int64
	nextRow int64
	rows    map[int64]*Quotation
	tx      *fakeTx
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[int64]*Quotation), tx: &fakeTx{}}
}

func cloneQuotation(q *Quotation) *Quotation {
	cp := *q
	cp.Lines = append([]LineItem(nil), q.Lines...)
	if q.SubmittedAt != nil {
		v := *q.SubmittedAt
		cp.SubmittedAt = &v
	}
	if q.ApprovedAt != nil {
		v := *q.ApprovedAt
		cp.ApprovedAt = &v
	}
	if q.ApproverID != nil {
		v := *q.ApproverID
		cp.ApproverID = &v
	}
	if q.RejectionReason != nil {
		v := *q.RejectionReason
		cp.RejectionReason = &v
	}
	if q.DeletedAt != nil {
		v := *q.DeletedAt
		cp.DeletedAt = &v
	}
	return &cp
}

func (m *memoryRepo) snapshot() map[int64]*Quotation {
	snap := make(map[int64]*Quotation, len(m.rows))
	for id, q := range m.rows {
		snap[id] = cloneQuotation(q)
	}
	return snap
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.rows = snap
		return err
	}
	return nil
}

func (m *memoryRepo) Tx() pgx.Tx { return m.tx }

func (m *memoryRepo) Get(ctx context.Context, id int64) (*Quotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *memoryRepo) get(id int64) (*Quotation, error) {
	q, ok := m.rows[id]
	if !ok || q.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return cloneQuotation(q), nil
}

func (m *memoryRepo) GetForUpdate(ctx context.Context, id int64) (*Quotation, error) {
	return m.get(id)
}

func (m *memoryRepo) Insert(ctx context.Context, q *Quotation) (int64, error) {
	m.nextID++
	cp := cloneQuotation(q)
	cp.ID = m.nextID
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	for i := range cp.Lines {
		m.nextRow++
		cp.Lines[i].ID = m.nextRow
		cp.Lines[i].QuotationID = cp.ID
	}
	m.rows[cp.ID] = cp
	return cp.ID, nil
}

func (m *memoryRepo) ReplaceLines(ctx context.Context, quotationID int64, lines []LineItem, total float64) error {
	q, ok := m.rows[quotationID]
	if !ok {
		return ErrNotFound
	}
	q.Lines = append([]LineItem(nil), lines...)
	for i := range q.Lines {
		m.nextRow++
		q.Lines[i].ID = m.nextRow
		q.Lines[i].QuotationID = quotationID
	}
	q.TotalAmount = total
	q.UpdatedAt = time.Now()
	return nil
}

func (m *memoryRepo) UpdateStatus(ctx context.Context, id int64, status Status, actorID int64, reason *string) error {
	q, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	q.Status = status
	q.UpdatedAt = now
	switch status {
	case StatusPending:
		if q.SubmittedAt == nil {
			q.SubmittedAt = &now
		}
	case StatusApproved:
		if q.ApprovedAt == nil {
			q.ApprovedAt = &now
			q.ApproverID = &actorID
		}
	case StatusRejected:
		q.RejectionReason = reason
	}
	return nil
}

func (m *memoryRepo) MaxVersion(ctx context.Context, projectID int64) (int, error) {
	max := 0
	for _, q := range m.rows {
		if q.ProjectID == projectID && q.DeletedAt == nil && q.Version > max {
			max = q.Version
		}
	}
	return max, nil
}

func (m *memoryRepo) SoftDelete(ctx context.Context, id int64) error {
	q, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	q.DeletedAt = &now
	return nil
}

func (m *memoryRepo) HeadForProject(ctx context.Context, projectID int64) (*Quotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var head *Quotation
	for _, q := range m.rows {
		if q.ProjectID == projectID && q.DeletedAt == nil {
			if head == nil || q.Version > head.Version {
				head = q
			}
		}
	}
	if head == nil {
		return nil, ErrNotFound
	}
	return cloneQuotation(head), nil
}

func (m *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Quotation, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Quotation
	for _, q := range m.rows {
		if q.DeletedAt != nil {
			continue
		}
		if filter.ProjectID != 0 && q.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Status != "" && q.Status != filter.Status {
			continue
		}
		out = append(out, *cloneQuotation(q))
	}
	return out, len(out), nil
}

type stubProjects struct {
	existing map[int64]bool
	err      error
}

func (s *stubProjects) Exists(ctx context.Context, projectID int64) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.existing[projectID], nil
}

type stubCatalog struct {
	existing map[int64]bool
	err      error
}

func (s *stubCatalog) Exists(ctx context.Context, productID int64) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.existing[productID], nil
}

type stubIntegration struct {
	mu     sync.Mutex
	events []AcceptedEvent
	txs    []pgx.Tx
	err    error
}

func (s *stubIntegration) OnQuotationAccepted(ctx context.Context, tx pgx.Tx, evt AcceptedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, evt)
	s.txs = append(s.txs, tx)
	return nil
}

type stubDispatcher struct {
	mu       sync.Mutex
	enqueued []int64
	err      error
}

func (s *stubDispatcher) EnqueueQuotationDispatch(ctx context.Context, quotationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, quotationID)
	return nil
}

type serviceFixture struct {
	svc        *Service
	repo       *memoryRepo
	projects   *stubProjects
	dispatcher *stubDispatcher
	hooks      *stubIntegration
	locker     *shared.Locker
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	locker := shared.NewLocker(client, logger)
	repo := newMemoryRepo()
	projects := &stubProjects{existing: map[int64]bool{1: true, 2: true}}

	svc := NewService(repo, projects, locker, 5*time.Second, 2*time.Second, logger)
	dispatcher := &stubDispatcher{}
	hooks := &stubIntegration{}
	svc.SetDispatcher(dispatcher)
	svc.SetIntegrationHandler(hooks)

	return &serviceFixture{
		svc:        svc,
		repo:       repo,
		projects:   projects,
		dispatcher: dispatcher,
		hooks:      hooks,
		locker:     locker,
	}
}

func (f *serviceFixture) mustCreate(t *testing.T, projectID int64) *Quotation {
	t.Helper()
	q, err := f.svc.Create(context.Background(), CreateRequest{
		ProjectID:    projectID,
		QuoteDate:    time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		ValidityDays: 30,
		Lines: []LineInput{
			{ProductID: 1, Quantity: 4, UnitPrice: 2500},
			{ProductID: 2, Quantity: 1, UnitPrice: 180.5},
		},
	}, 3)
	require.NoError(t, err)
	return q
}

func TestService_Create(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	t.Run("creates version one draft", func(t *testing.T) {
		q := f.mustCreate(t, 1)
		assert.Equal(t, StatusDraft, q.Status)
		assert.Equal(t, 1, q.Version)
		require.InDelta(t, 4*2500+180.5, q.TotalAmount, 0.001)
		assert.NotZero(t, q.ID)
	})

	t.Run("rejects unknown project", func(t *testing.T) {
		_, err := f.svc.Create(ctx, CreateRequest{ProjectID: 77, QuoteDate: time.Now(), ValidityDays: 10}, 3)
		require.ErrorIs(t, err, ErrProjectNotFound)
	})

	t.Run("rejects second chain for same project", func(t *testing.T) {
		_, err := f.svc.Create(ctx, CreateRequest{ProjectID: 1, QuoteDate: time.Now(), ValidityDays: 10}, 3)
		require.ErrorIs(t, err, ErrVersionNotAllowed)
	})
}

func TestService_ProductCatalogCheck(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.svc.SetProductCatalog(&stubCatalog{existing: map[int64]bool{1: true, 2: true}})

	t.Run("rejects unknown product on create", func(t *testing.T) {
		_, err := f.svc.Create(ctx, CreateRequest{
			ProjectID: 1, QuoteDate: time.Now(), ValidityDays: 14,
			Lines: []LineInput{{ProductID: 9, Quantity: 1, UnitPrice: 100}},
		}, 3)
		require.ErrorIs(t, err, ErrProductNotFound)
		assert.Contains(t, err.Error(), "product 9")
	})

	t.Run("rejects unknown product on line update", func(t *testing.T) {
		q := f.mustCreate(t, 1)
		_, err := f.svc.UpdateLines(ctx, q.ID, UpdateLinesRequest{
			Lines: []LineInput{{ProductID: 9, Quantity: 2, UnitPrice: 50}},
		}, 3)
		require.ErrorIs(t, err, ErrProductNotFound)

		stored, err := f.svc.Get(ctx, q.ID)
		require.NoError(t, err)
		require.Len(t, stored.Lines, 2)
	})
}

func TestService_Lifecycle(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	q := f.mustCreate(t, 1)

	q2, err := f.svc.Submit(ctx, q.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, q2.Status)

	q3, err := f.svc.Approve(ctx, q.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, q3.Status)

	q4, err := f.svc.Send(ctx, q.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, StatusSending, q4.Status)
	assert.Equal(t, []int64{q.ID}, f.dispatcher.enqueued)

	q5, err := f.svc.MarkSent(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, q5.Status)

	q6, err := f.svc.Accept(ctx, q.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, q6.Status)

	stored, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, stored.Status)
	require.NotNil(t, stored.SubmittedAt)
	require.NotNil(t, stored.ApprovedAt)
	require.NotNil(t, stored.ApproverID)
	assert.Equal(t, int64(9), *stored.ApproverID)
}

func TestService_SubmitRequiresLines(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	q, err := f.svc.Create(ctx, CreateRequest{
		ProjectID: 1, QuoteDate: time.Now(), ValidityDays: 14,
	}, 3)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, q.ID, 3)
	require.ErrorIs(t, err, ErrNoLineItems)

	stored, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, stored.Status)
}

func TestService_ApproveRejectsWrongState(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	q := f.mustCreate(t, 1)

	_, err := f.svc.Approve(ctx, q.ID, 9)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_Reject(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	q := f.mustCreate(t, 1)
	_, err := f.svc.Submit(ctx, q.ID, 3)
	require.NoError(t, err)

	t.Run("reason required", func(t *testing.T) {
		_, err := f.svc.Reject(ctx, q.ID, 9, "   ")
		require.ErrorIs(t, err, ErrReasonRequired)
	})

	t.Run("stores reason and terminates", func(t *testing.T) {
		rejected, err := f.svc.Reject(ctx, q.ID, 9, "price too high")
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, rejected.Status)
		require.NotNil(t, rejected.RejectionReason)
		assert.Equal(t, "price too high", *rejected.RejectionReason)

		_, err = f.svc.Submit(ctx, q.ID, 3)
		require.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestService_SendRevertsWhenEnqueueFails(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	q := f.mustCreate(t, 1)
	_, err := f.svc.Submit(ctx, q.ID, 3)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, q.ID, 9)
	require.NoError(t, err)

	f.dispatcher.err = errors.New("queue unavailable")
	_, err = f.svc.Send(ctx, q.ID, 3)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidTransition)

	stored, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status, "failed enqueue must leave the quotation sendable")

	f.dispatcher.err = nil
	_, err = f.svc.Send(ctx, q.ID, 3)
	require.NoError(t, err)
}

func TestService_MarkDispatchFailed(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	q := f.mustCreate(t, 1)
	_, err := f.svc.Submit(ctx, q.ID, 3)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, q.ID, 9)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, q.ID, 3)
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkDispatchFailed(ctx, q.ID, "smtp timeout"))

	stored, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status)

	// Approver identity from the original approval is preserved.
	require.NotNil(t, stored.ApproverID)
	assert.Equal(t, int64(9), *stored.ApproverID)
}

func TestService_AcceptRunsHookOnTransaction(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	q := f.mustCreate(t, 1)
	for _, step := range []func() error{
		func() error { _, err := f.svc.Submit(ctx, q.ID, 3); return err },
		func() error { _, err := f.svc.Approve(ctx, q.ID, 9); return err },
		func() error { _, err := f.svc.Send(ctx, q.ID, 3); return err },
		func() error { _, err := f.svc.MarkSent(ctx, q.ID); return err },
	} {
		require.NoError(t, step())
	}

	_, err := f.svc.Accept(ctx, q.ID, 4)
	require.NoError(t, err)

	require.Len(t, f.hooks.events, 1)
	evt := f.hooks.events[0]
	assert.Equal(t, q.ID, evt.QuotationID)
	assert.Equal(t, int64(1), evt.ProjectID)
	assert.Equal(t, 1, evt.Version)
	require.InDelta(t, q.TotalAmount, evt.TotalAmount, 0.001)
	assert.Equal(t, int64(4), evt.ActorID)

	require.Len(t, f.hooks.txs, 1)
	assert.Equal(t, f.repo.tx, f.hooks.txs[0], "hook must receive the accepting transaction")
}

func TestService_AcceptRollsBackWhenHookFails(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	q := f.mustCreate(t, 1)
	for _, step := range []func() error{
		func() error { _, err := f.svc.Submit(ctx, q.ID, 3); return err },
		func() error { _, err := f.svc.Approve(ctx, q.ID, 9); return err },
		func() error { _, err := f.svc.Send(ctx, q.ID, 3); return err },
		func() error { _, err := f.svc.MarkSent(ctx, q.ID); return err },
	} {
		require.NoError(t, step())
	}

	f.hooks.err = errors.New("project activation failed")
	_, err := f.svc.Accept(ctx, q.ID, 4)
	require.Error(t, err)

	stored, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, stored.Status, "status change and hook must commit together or not at all")

	f.hooks.err = nil
	_, err = f.svc.Accept(ctx, q.ID, 4)
	require.NoError(t, err)
}

func TestService_NewVersion(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	q := f.mustCreate(t, 1)
	_, err := f.svc.Submit(ctx, q.ID, 3)
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, q.ID, 9, "needs rework")
	require.NoError(t, err)

	v2, err := f.svc.NewVersion(ctx, q.ID, NewVersionRequest{}, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, StatusDraft, v2.Status)
	assert.NotEqual(t, q.ID, v2.ID)
	require.Len(t, v2.Lines, 2)

	t.Run("source row untouched", func(t *testing.T) {
		src, err := f.svc.Get(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, src.Status)
		assert.Equal(t, 1, src.Version)
	})

	t.Run("only chain head can be versioned", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, v2.ID, 3)
		require.NoError(t, err)
		_, err = f.svc.Reject(ctx, v2.ID, 9, "still wrong")
		require.NoError(t, err)

		_, err = f.svc.NewVersion(ctx, q.ID, NewVersionRequest{}, 3)
		require.ErrorIs(t, err, ErrNotLatestVersion)

		v3, err := f.svc.NewVersion(ctx, v2.ID, NewVersionRequest{}, 3)
		require.NoError(t, err)
		assert.Equal(t, 3, v3.Version)
	})

	t.Run("open version cannot be chained", func(t *testing.T) {
		versions, _, err := f.svc.List(ctx, ListFilter{ProjectID: 1, Status: StatusDraft})
		require.NoError(t, err)
		require.Len(t, versions, 1)
		_, err = f.svc.NewVersion(ctx, versions[0].ID, NewVersionRequest{}, 3)
		require.ErrorIs(t, err, ErrVersionNotAllowed)
	})
}

func TestService_SoftDelete(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	q := f.mustCreate(t, 1)

	t.Run("non-draft is not deletable", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, q.ID, 3)
		require.NoError(t, err)
		err = f.svc.SoftDelete(ctx, q.ID, 3)
		require.ErrorIs(t, err, ErrNotDeletable)
	})

	t.Run("draft tombstones and frees the chain", func(t *testing.T) {
		draft := f.mustCreate(t, 2)
		require.NoError(t, f.svc.SoftDelete(ctx, draft.ID, 3))

		_, err := f.svc.Get(ctx, draft.ID)
		require.ErrorIs(t, err, ErrNotFound)

		// A deleted draft chain does not block a fresh chain.
		again := f.mustCreate(t, 2)
		assert.Equal(t, 1, again.Version)
	})
}

func TestService_ConcurrentSubmitsOnlyOneWins(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	q := f.mustCreate(t, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Submit(ctx, q.ID, 3)
		}(i)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInvalidTransition):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one submit wins")
	assert.Equal(t, 1, conflicted, "the loser sees the already-submitted state")

	stored, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestService_LockTimeoutSurfacesDistinctError(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	q := f.mustCreate(t, 1)

	// An impatient service sharing the same locker and store.
	impatient := NewService(f.repo, f.projects, f.locker, 5*time.Second, 100*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	handle, err := f.locker.Acquire(ctx, shared.QuotationLockKey(q.ID), 5*time.Second, time.Second)
	require.NoError(t, err)
	defer func() { _ = handle.Release(ctx) }()

	_, err = impatient.Submit(ctx, q.ID, 3)
	require.ErrorIs(t, err, shared.ErrLockTimeout)

	stored, err := f.svc.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, stored.Status, "timed out caller must not have touched the row")
}

func TestService_RejectsNonPositiveID(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, 0, 3)
	require.Error(t, err)
	require.NotErrorIs(t, err, shared.ErrLockTimeout)

	_, err = f.svc.Submit(ctx, -4, 3)
	require.Error(t, err)
}
