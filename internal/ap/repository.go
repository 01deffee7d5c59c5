package ap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wellkorea/wellkorea-erp/internal/platform/db"
)

// Repository is the read side plus transaction entry points.
//
// ExistsByCauseTx and InsertTx run on a caller-supplied transaction: the
// purchase-order confirmation hook threads its own transaction through them
// so the payable commits or rolls back together with the confirmation.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*AccountsPayable, error)
	Detail(ctx context.Context, id int64) (*PayableDetail, error)
	List(ctx context.Context, filter ListFilter) ([]PayableDetail, int, error)
	DueWithin(ctx context.Context, days int) ([]PayableDetail, error)

	ExistsByCauseTx(ctx context.Context, tx pgx.Tx, cause DisbursementCause) (bool, error)
	InsertTx(ctx context.Context, tx pgx.Tx, p *AccountsPayable) (int64, error)
}

// TxRepository exposes the mutations that must run inside a transaction
// opened by WithTx.
type TxRepository interface {
	Tx() pgx.Tx
	GetForUpdate(ctx context.Context, id int64) (*AccountsPayable, error)
	PaidSum(ctx context.Context, payableID int64) (float64, error)
	InsertPayment(ctx context.Context, p *VendorPayment) (int64, error)
	SetCancelled(ctx context.Context, id int64) error
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool, tx: tx})
	})
}

func (r *repository) Tx() pgx.Tx {
	return r.tx
}

const payableColumns = `id, cause_type, cause_id, cause_reference, vendor_id,
total_amount, currency, due_date, cancelled_at, created_at, updated_at`

func scanPayable(row pgx.Row) (*AccountsPayable, error) {
	var p AccountsPayable
	err := row.Scan(
		&p.ID, &p.Cause.Type, &p.Cause.ID, &p.Cause.Reference, &p.VendorID,
		&p.TotalAmount, &p.Currency, &p.DueDate, &p.CancelledAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*AccountsPayable, error) {
	return scanPayable(r.db.QueryRow(ctx,
		`SELECT `+payableColumns+` FROM accounts_payable WHERE id=$1`, id))
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (*AccountsPayable, error) {
	return scanPayable(r.db.QueryRow(ctx,
		`SELECT `+payableColumns+` FROM accounts_payable WHERE id=$1 FOR UPDATE`, id))
}

func (r *repository) Detail(ctx context.Context, id int64) (*PayableDetail, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	payments, err := r.paymentsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	var paid float64
	for _, vp := range payments {
		paid += vp.Amount
	}
	return &PayableDetail{
		AccountsPayable: *p,
		PaidAmount:      paid,
		Balance:         p.TotalAmount - paid,
		Status:          p.StatusFor(paid),
		Payments:        payments,
	}, nil
}

func (r *repository) paymentsFor(ctx context.Context, payableID int64) ([]VendorPayment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, payable_id, amount, paid_at, method, reference, created_by, created_at
		 FROM vendor_payments WHERE payable_id=$1 ORDER BY id`, payableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []VendorPayment
	for rows.Next() {
		var vp VendorPayment
		if err := rows.Scan(&vp.ID, &vp.PayableID, &vp.Amount, &vp.PaidAt,
			&vp.Method, &vp.Reference, &vp.CreatedBy, &vp.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, vp)
	}
	return payments, rows.Err()
}

func (r *repository) PaidSum(ctx context.Context, payableID int64) (float64, error) {
	var paid float64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM vendor_payments WHERE payable_id=$1`,
		payableID).Scan(&paid)
	return paid, err
}

// derivedStatusSQL mirrors AccountsPayable.StatusFor so the List status
// filter can run in the database. NUMERIC comparisons are exact there, so no
// epsilon is needed.
const derivedStatusSQL = `CASE
WHEN p.cancelled_at IS NOT NULL THEN 'CANCELLED'
WHEN COALESCE(SUM(vp.amount), 0) >= p.total_amount THEN 'PAID'
WHEN COALESCE(SUM(vp.amount), 0) > 0 THEN 'PARTIALLY_PAID'
ELSE 'PENDING' END`

func (r *repository) List(ctx context.Context, filter ListFilter) ([]PayableDetail, int, error) {
	where := ""
	args := []any{}
	if filter.VendorID > 0 {
		args = append(args, filter.VendorID)
		where += fmt.Sprintf(" AND p.vendor_id=$%d", len(args))
	}
	if filter.CauseType != "" {
		args = append(args, filter.CauseType)
		where += fmt.Sprintf(" AND p.cause_type=$%d", len(args))
	}
	having := ""
	if filter.Status != "" {
		args = append(args, filter.Status)
		having = fmt.Sprintf(" HAVING %s = $%d", derivedStatusSQL, len(args))
	}

	base := ` FROM accounts_payable p
LEFT JOIN vendor_payments vp ON vp.payable_id = p.id
WHERE 1=1` + where + ` GROUP BY p.id` + having

	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM (SELECT p.id`+base+`) sub`, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.db.Query(ctx,
		`SELECT p.id, p.cause_type, p.cause_id, p.cause_reference, p.vendor_id,
p.total_amount, p.currency, p.due_date, p.cancelled_at, p.created_at, p.updated_at,
COALESCE(SUM(vp.amount), 0) AS paid`+base+
			fmt.Sprintf(` ORDER BY p.due_date, p.id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []PayableDetail
	for rows.Next() {
		var d PayableDetail
		if err := rows.Scan(
			&d.ID, &d.Cause.Type, &d.Cause.ID, &d.Cause.Reference, &d.VendorID,
			&d.TotalAmount, &d.Currency, &d.DueDate, &d.CancelledAt, &d.CreatedAt, &d.UpdatedAt,
			&d.PaidAmount,
		); err != nil {
			return nil, 0, err
		}
		d.Balance = d.TotalAmount - d.PaidAmount
		d.Status = d.StatusFor(d.PaidAmount)
		result = append(result, d)
	}
	return result, total, rows.Err()
}

// DueWithin returns open payables (including overdue ones) whose due date
// falls inside the next `days` days. Feeds the due-soon scan.
func (r *repository) DueWithin(ctx context.Context, days int) ([]PayableDetail, error) {
	rows, err := r.db.Query(ctx,
		`SELECT p.id, p.cause_type, p.cause_id, p.cause_reference, p.vendor_id,
p.total_amount, p.currency, p.due_date, p.cancelled_at, p.created_at, p.updated_at,
COALESCE(SUM(vp.amount), 0) AS paid
FROM accounts_payable p
LEFT JOIN vendor_payments vp ON vp.payable_id = p.id
WHERE p.cancelled_at IS NULL AND p.due_date <= NOW() + make_interval(days => $1)
GROUP BY p.id
HAVING COALESCE(SUM(vp.amount), 0) < p.total_amount
ORDER BY p.due_date, p.id`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []PayableDetail
	for rows.Next() {
		var d PayableDetail
		if err := rows.Scan(
			&d.ID, &d.Cause.Type, &d.Cause.ID, &d.Cause.Reference, &d.VendorID,
			&d.TotalAmount, &d.Currency, &d.DueDate, &d.CancelledAt, &d.CreatedAt, &d.UpdatedAt,
			&d.PaidAmount,
		); err != nil {
			return nil, err
		}
		d.Balance = d.TotalAmount - d.PaidAmount
		d.Status = d.StatusFor(d.PaidAmount)
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *repository) ExistsByCauseTx(ctx context.Context, tx pgx.Tx, cause DisbursementCause) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts_payable WHERE cause_type=$1 AND cause_id=$2)`,
		cause.Type, cause.ID).Scan(&exists)
	return exists, err
}

// InsertTx writes the payable on the supplied transaction. A unique
// violation on (cause_type, cause_id) maps to ErrDuplicateCause so callers
// can treat the race like the existence check firing.
func (r *repository) InsertTx(ctx context.Context, tx pgx.Tx, p *AccountsPayable) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO accounts_payable
		 (cause_type, cause_id, cause_reference, vendor_id, total_amount, currency, due_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		 RETURNING id`,
		p.Cause.Type, p.Cause.ID, p.Cause.Reference, p.VendorID,
		p.TotalAmount, p.Currency, p.DueDate).Scan(&id)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return 0, ErrDuplicateCause
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) InsertPayment(ctx context.Context, p *VendorPayment) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO vendor_payments
		 (payable_id, amount, paid_at, method, reference, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING id`,
		p.PayableID, p.Amount, p.PaidAt, p.Method, p.Reference, p.CreatedBy).Scan(&id)
	return id, err
}

func (r *repository) SetCancelled(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE accounts_payable SET cancelled_at = NOW(), updated_at = NOW()
		 WHERE id=$1 AND cancelled_at IS NULL`, id)
	return err
}
