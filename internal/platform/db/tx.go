package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxFn runs inside a transaction. Returning an error rolls the transaction back.
type TxFn func(pgx.Tx) error

// WithTx runs fn inside a RepeatableRead transaction. Row locks taken by fn
// (FOR UPDATE, the sequence counter upsert) are held until commit or rollback.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn TxFn) error {
	return withTx(ctx, pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, fn)
}

// WithReadTx runs fn inside a read-only transaction for multi-query reads
// that need a consistent snapshot.
func WithReadTx(ctx context.Context, pool *pgxpool.Pool, fn TxFn) error {
	return withTx(ctx, pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func withTx(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions, fn TxFn) error {
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
