package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wellkorea/wellkorea-erp/internal/platform/db"
)

// Repository is the read side of invoice storage.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Invoice, error)
	GetByNumber(ctx context.Context, number string) (*Invoice, error)
	List(ctx context.Context, filter ListFilter) ([]Invoice, int, error)
}

// TxRepository exposes the mutations that must run inside a transaction.
type TxRepository interface {
	Tx() pgx.Tx
	GetForUpdate(ctx context.Context, id int64) (*Invoice, error)
	Insert(ctx context.Context, inv *Invoice) (int64, error)
	SetIssued(ctx context.Context, id int64, number string) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
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

const invoiceColumns = `id, invoice_number, project_id, customer_id, total_amount,
currency, status, issued_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.ProjectID, &inv.CustomerID, &inv.TotalAmount,
		&inv.Currency, &inv.Status, &inv.IssuedAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Invoice, error) {
	return scanInvoice(r.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id))
}

func (r *repository) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	return scanInvoice(r.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE invoice_number=$1`, number))
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	return scanInvoice(r.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 FOR UPDATE`, id))
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.ProjectID > 0 {
		args = append(args, filter.ProjectID)
		where += fmt.Sprintf(" AND project_id=$%d", len(args))
	}
	if filter.CustomerID > 0 {
		args = append(args, filter.CustomerID)
		where += fmt.Sprintf(" AND customer_id=$%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status=$%d", len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`+where, args...).Scan(&total); err != nil {
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
		`SELECT `+invoiceColumns+` FROM invoices`+where+
			fmt.Sprintf(` ORDER BY id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(
			&inv.ID, &inv.InvoiceNumber, &inv.ProjectID, &inv.CustomerID, &inv.TotalAmount,
			&inv.Currency, &inv.Status, &inv.IssuedAt, &inv.CreatedAt, &inv.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		result = append(result, inv)
	}
	return result, total, rows.Err()
}

func (r *repository) Insert(ctx context.Context, inv *Invoice) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO invoices
		 (project_id, customer_id, total_amount, currency, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		 RETURNING id`,
		inv.ProjectID, inv.CustomerID, inv.TotalAmount, inv.Currency, inv.Status).Scan(&id)
	return id, err
}

func (r *repository) SetIssued(ctx context.Context, id int64, number string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE invoices
		 SET invoice_number=$2, status=$3, issued_at=NOW(), updated_at=NOW()
		 WHERE id=$1`, id, number, StatusIssued)
	return err
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := r.db.Exec(ctx,
		`UPDATE invoices SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	return err
}
