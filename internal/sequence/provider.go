// Package sequence issues monotonically increasing per-scope counters used
// for human-readable document codes: job codes, invoice numbers, purchase
// order numbers.
package sequence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// Querier is the single query surface the provider needs. Satisfied by
// *pgxpool.Pool and by pgx.Tx, so callers can advance a counter either
// standalone or inside their own transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Provider hands out the next counter value for a scope key. Every call
// round-trips to the counter row; nothing is cached, so multiple application
// instances can share one database without ever issuing a duplicate.
type Provider struct {
	db Querier
}

// NewProvider constructs a Provider over a pool or transaction.
func NewProvider(db Querier) *Provider {
	return &Provider{db: db}
}

// upsert inserts the counter row on first use and increments it afterwards.
// The row lock taken by the statement serializes concurrent callers on the
// same key until the surrounding transaction commits or rolls back, which
// also releases the lock if the process dies mid-request. Values skipped by
// rolled-back transactions leave gaps; they never repeat.
const upsert = `
INSERT INTO document_sequences (scope_key, seq)
VALUES ($1, 1)
ON CONFLICT (scope_key)
DO UPDATE SET seq = document_sequences.seq + 1
RETURNING seq`

// Next returns the next value for scopeKey. Storage errors propagate to the
// caller untouched: they are infrastructure faults, not business failures,
// and the provider performs no retries.
func (p *Provider) Next(ctx context.Context, scopeKey string) (int64, error) {
	if scopeKey == "" {
		return 0, errors.New("sequence: empty scope key")
	}
	var seq int64
	if err := p.db.QueryRow(ctx, upsert, scopeKey).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// NextInTx advances the counter on the caller's transaction, so the value is
// burned or released together with the document that consumes it.
func (p *Provider) NextInTx(ctx context.Context, tx pgx.Tx, scopeKey string) (int64, error) {
	if scopeKey == "" {
		return 0, errors.New("sequence: empty scope key")
	}
	var seq int64
	if err := tx.QueryRow(ctx, upsert, scopeKey).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}
