package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wellkorea/wellkorea-erp/internal/platform/db"
)

// Repository is the delivery persistence surface. DeliveredByProduct doubles
// as the Guard's DeliveredQuantitySource.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Delivery, error)
	List(ctx context.Context, filter ListFilter) ([]Delivery, int, error)
	DeliveredByProduct(ctx context.Context, projectID int64) (map[int64]float64, error)
}

// TxRepository is the mutation surface bound to one open transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (*Delivery, error)
	Insert(ctx context.Context, d *Delivery) (int64, error)
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
}

// NewRepository constructs the PostgreSQL-backed delivery repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const deliveryColumns = `id, project_id, quotation_id, delivery_date, status, deliverer_id, notes, created_at, updated_at`

func scanDelivery(row pgx.Row) (*Delivery, error) {
	var d Delivery
	err := row.Scan(&d.ID, &d.ProjectID, &d.QuotationID, &d.DeliveryDate, &d.Status,
		&d.DelivererID, &d.Notes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan delivery: %w", err)
	}
	return &d, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Delivery, error) {
	row := r.db.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id=$1`, id)
	d, err := scanDelivery(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (*Delivery, error) {
	row := r.db.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id=$1 FOR UPDATE`, id)
	d, err := scanDelivery(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *repository) loadLines(ctx context.Context, d *Delivery) error {
	rows, err := r.db.Query(ctx,
		`SELECT id, delivery_id, product_id, quantity FROM delivery_lines WHERE delivery_id=$1 ORDER BY id`,
		d.ID)
	if err != nil {
		return fmt.Errorf("load delivery lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ln LineItem
		if err := rows.Scan(&ln.ID, &ln.DeliveryID, &ln.ProductID, &ln.Quantity); err != nil {
			return fmt.Errorf("scan delivery line: %w", err)
		}
		d.Lines = append(d.Lines, ln)
	}
	return rows.Err()
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Delivery, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.ProjectID != 0 {
		args = append(args, filter.ProjectID)
		where += fmt.Sprintf(" AND project_id=$%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(" AND status=$%d", len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM deliveries`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deliveries: %w", err)
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
	query := `SELECT ` + deliveryColumns + ` FROM deliveries` + where +
		fmt.Sprintf(` ORDER BY delivery_date DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.QuotationID, &d.DeliveryDate, &d.Status,
			&d.DelivererID, &d.Notes, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// DeliveredByProduct recomputes the delivered totals for a project on every
// call, skipping RETURNED deliveries.
func (r *repository) DeliveredByProduct(ctx context.Context, projectID int64) (map[int64]float64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT dl.product_id, COALESCE(SUM(dl.quantity), 0)
		FROM delivery_lines dl
		JOIN deliveries d ON d.id = dl.delivery_id
		WHERE d.project_id = $1 AND d.status <> $2
		GROUP BY dl.product_id`,
		projectID, string(StatusReturned))
	if err != nil {
		return nil, fmt.Errorf("sum delivered quantities: %w", err)
	}
	defer rows.Close()

	totals := make(map[int64]float64)
	for rows.Next() {
		var productID int64
		var qty float64
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, fmt.Errorf("scan delivered quantity: %w", err)
		}
		totals[productID] = qty
	}
	return totals, rows.Err()
}

func (r *repository) Insert(ctx context.Context, d *Delivery) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO deliveries (project_id, quotation_id, delivery_date, status, deliverer_id, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		d.ProjectID, d.QuotationID, d.DeliveryDate, string(d.Status), d.DelivererID, d.Notes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert delivery: %w", err)
	}
	for i := range d.Lines {
		if err := r.db.QueryRow(ctx, `
			INSERT INTO delivery_lines (delivery_id, product_id, quantity)
			VALUES ($1, $2, $3)
			RETURNING id`,
			id, d.Lines[i].ProductID, d.Lines[i].Quantity,
		).Scan(&d.Lines[i].ID); err != nil {
			return 0, fmt.Errorf("insert delivery line: %w", err)
		}
		d.Lines[i].DeliveryID = id
	}
	return id, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE deliveries SET status=$2, updated_at=NOW() WHERE id=$1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
