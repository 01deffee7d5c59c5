package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wellkorea/wellkorea-erp/internal/platform/db"
)

// Repository is the purchase order persistence surface.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*PurchaseOrder, error)
	List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error)
}

// TxRepository is the mutation surface bound to one open transaction. Tx
// exposes the transaction for the sequence provider and integration hooks.
type TxRepository interface {
	Tx() pgx.Tx
	GetForUpdate(ctx context.Context, id int64) (*PurchaseOrder, error)
	Insert(ctx context.Context, po *PurchaseOrder) (int64, error)
	ReplaceLines(ctx context.Context, poID int64, lines []LineItem, total float64) error
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

// NewRepository constructs the PostgreSQL-backed purchase order repository.
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

const poColumns = `id, po_number, vendor_id, currency, total_amount, status, created_by, confirmed_at, created_at, updated_at`

func scanPO(row pgx.Row) (*PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.PONumber, &po.VendorID, &po.Currency, &po.TotalAmount,
		&po.Status, &po.CreatedBy, &po.ConfirmedAt, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan purchase order: %w", err)
	}
	return &po, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*PurchaseOrder, error) {
	po, err := scanPO(r.db.QueryRow(ctx,
		`SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, po); err != nil {
		return nil, err
	}
	return po, nil
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (*PurchaseOrder, error) {
	po, err := scanPO(r.db.QueryRow(ctx,
		`SELECT `+poColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, po); err != nil {
		return nil, err
	}
	return po, nil
}

func (r *repository) loadLines(ctx context.Context, po *PurchaseOrder) error {
	rows, err := r.db.Query(ctx, `
		SELECT id, purchase_order_id, product_id, quantity, unit_cost, line_no
		FROM purchase_order_lines WHERE purchase_order_id=$1 ORDER BY line_no`, po.ID)
	if err != nil {
		return fmt.Errorf("load purchase order lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ln LineItem
		if err := rows.Scan(&ln.ID, &ln.PurchaseOrderID, &ln.ProductID, &ln.Quantity, &ln.UnitCost, &ln.LineNo); err != nil {
			return fmt.Errorf("scan purchase order line: %w", err)
		}
		po.Lines = append(po.Lines, ln)
	}
	return rows.Err()
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.VendorID > 0 {
		args = append(args, filter.VendorID)
		where += fmt.Sprintf(" AND vendor_id=$%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(" AND status=$%d", len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count purchase orders: %w", err)
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
		`SELECT `+poColumns+` FROM purchase_orders`+where+
			fmt.Sprintf(` ORDER BY id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list purchase orders: %w", err)
	}
	defer rows.Close()

	var out []PurchaseOrder
	for rows.Next() {
		var po PurchaseOrder
		if err := rows.Scan(&po.ID, &po.PONumber, &po.VendorID, &po.Currency, &po.TotalAmount,
			&po.Status, &po.CreatedBy, &po.ConfirmedAt, &po.CreatedAt, &po.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan purchase order: %w", err)
		}
		out = append(out, po)
	}
	return out, total, rows.Err()
}

func (r *repository) Insert(ctx context.Context, po *PurchaseOrder) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO purchase_orders (po_number, vendor_id, currency, total_amount, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		po.PONumber, po.VendorID, po.Currency, po.TotalAmount, string(po.Status), po.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert purchase order: %w", err)
	}
	for i := range po.Lines {
		if err := r.db.QueryRow(ctx, `
			INSERT INTO purchase_order_lines (purchase_order_id, product_id, quantity, unit_cost, line_no)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			id, po.Lines[i].ProductID, po.Lines[i].Quantity, po.Lines[i].UnitCost, po.Lines[i].LineNo,
		).Scan(&po.Lines[i].ID); err != nil {
			return 0, fmt.Errorf("insert purchase order line: %w", err)
		}
		po.Lines[i].PurchaseOrderID = id
	}
	return id, nil
}

func (r *repository) ReplaceLines(ctx context.Context, poID int64, lines []LineItem, total float64) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM purchase_order_lines WHERE purchase_order_id=$1`, poID); err != nil {
		return fmt.Errorf("delete purchase order lines: %w", err)
	}
	for i := range lines {
		if err := r.db.QueryRow(ctx, `
			INSERT INTO purchase_order_lines (purchase_order_id, product_id, quantity, unit_cost, line_no)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			poID, lines[i].ProductID, lines[i].Quantity, lines[i].UnitCost, lines[i].LineNo,
		).Scan(&lines[i].ID); err != nil {
			return fmt.Errorf("insert purchase order line: %w", err)
		}
		lines[i].PurchaseOrderID = poID
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE purchase_orders SET total_amount=$2, updated_at=NOW() WHERE id=$1`,
		poID, total)
	if err != nil {
		return fmt.Errorf("update purchase order total: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	confirmed := status == StatusConfirmed
	tag, err := r.db.Exec(ctx, `
		UPDATE purchase_orders
		SET status=$2,
		    confirmed_at = CASE WHEN $3 AND confirmed_at IS NULL THEN NOW() ELSE confirmed_at END,
		    updated_at=NOW()
		WHERE id=$1`,
		id, string(status), confirmed)
	if err != nil {
		return fmt.Errorf("update purchase order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
