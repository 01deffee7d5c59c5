package sequence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

// fakeCounterDB emulates the counter table: one serialized increment per
// scope key, like the row lock does in PostgreSQL.
type fakeCounterDB struct {
	mu       sync.Mutex
	counters map[string]int64
	failWith error
}

func newFakeCounterDB() *fakeCounterDB {
	return &fakeCounterDB{counters: make(map[string]int64)}
}

type fakeRow struct {
	seq int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.seq
	return nil
}

func (db *fakeCounterDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	if db.failWith != nil {
		return fakeRow{err: db.failWith}
	}
	key := args[0].(string)
	db.mu.Lock()
	defer db.mu.Unlock()
	db.counters[key]++
	return fakeRow{seq: db.counters[key]}
}

func TestNextReturnsDistinctValuesUnderConcurrency(t *testing.T) {
	const callers = 50
	provider := NewProvider(newFakeCounterDB())

	results := make(chan int64, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := provider.Next(context.Background(), JobCodeScope(2026))
			require.NoError(t, err)
			results <- seq
		}()
	}
	wg.Wait()
	close(results)

	var got []int64
	for seq := range results {
		got = append(got, seq)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })

	require.Len(t, got, callers)
	for i, seq := range got {
		// Contiguous run from 1 with no repeats.
		require.Equal(t, int64(i+1), seq)
	}
}

func TestNextScopeKeysAreIndependent(t *testing.T) {
	provider := NewProvider(newFakeCounterDB())
	ctx := context.Background()

	a1, err := provider.Next(ctx, JobCodeScope(2025))
	require.NoError(t, err)
	b1, err := provider.Next(ctx, JobCodeScope(2026))
	require.NoError(t, err)
	a2, err := provider.Next(ctx, JobCodeScope(2025))
	require.NoError(t, err)

	require.Equal(t, int64(1), a1)
	require.Equal(t, int64(1), b1)
	require.Equal(t, int64(2), a2)
}

func TestNextPropagatesStorageErrorUnmodified(t *testing.T) {
	boom := errors.New("connection refused")
	db := newFakeCounterDB()
	db.failWith = boom
	provider := NewProvider(db)

	_, err := provider.Next(context.Background(), InvoiceScope(2026))
	require.Equal(t, boom, err)
}

func TestNextRejectsEmptyScopeKey(t *testing.T) {
	provider := NewProvider(newFakeCounterDB())
	_, err := provider.Next(context.Background(), "")
	require.Error(t, err)
}

func TestCodeFormats(t *testing.T) {
	require.Equal(t, "WK-2026-0042", FormatJobCode(2026, 42))
	require.Equal(t, "INV-2026-0007", FormatInvoiceNumber(2026, 7))
	require.Equal(t, "PO-2026-1234", FormatPONumber(2026, 1234))
	require.Equal(t, "JOB:2026", JobCodeScope(2026))
}
