package project

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wellkorea/wellkorea-erp/internal/platform/db"
)

// Repository is the project persistence surface.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Project, error)
	GetByJobCode(ctx context.Context, jobCode string) (*Project, error)
	Exists(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]Project, int, error)
}

// TxRepository is the mutation surface bound to one open transaction. Tx
// exposes the transaction so the sequence provider can burn a job code on
// it.
type TxRepository interface {
	Tx() pgx.Tx
	GetForUpdate(ctx context.Context, id int64) (*Project, error)
	Insert(ctx context.Context, p *Project) (int64, error)
	Update(ctx context.Context, p *Project) error
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

// NewRepository constructs the PostgreSQL-backed project repository.
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

const projectColumns = `id, job_code, name, customer_id, status, created_by, created_at, updated_at`

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.JobCode, &p.Name, &p.CustomerID, &p.Status,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return &p, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Project, error) {
	return scanProject(r.db.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id=$1`, id))
}

func (r *repository) GetByJobCode(ctx context.Context, jobCode string) (*Project, error) {
	return scanProject(r.db.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE job_code=$1`, jobCode))
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (*Project, error) {
	return scanProject(r.db.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id=$1 FOR UPDATE`, id))
}

func (r *repository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM projects WHERE id=$1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check project exists: %w", err)
	}
	return exists, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Project, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if filter.CustomerID > 0 {
		args = append(args, filter.CustomerID)
		where += fmt.Sprintf(" AND customer_id=$%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += fmt.Sprintf(" AND (name ILIKE $%d OR job_code ILIKE $%d)", len(args), len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM projects`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
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
		`SELECT `+projectColumns+` FROM projects`+where+
			fmt.Sprintf(` ORDER BY id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.JobCode, &p.Name, &p.CustomerID, &p.Status,
			&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *repository) Insert(ctx context.Context, p *Project) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO projects (job_code, name, customer_id, status, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		p.JobCode, p.Name, p.CustomerID, string(p.Status), p.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert project: %w", err)
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, p *Project) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE projects SET name=$2, updated_at=NOW() WHERE id=$1`,
		p.ID, p.Name)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE projects SET status=$2, updated_at=NOW() WHERE id=$1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("update project status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ActivateOnTx flips a project PLANNED→ACTIVE on the caller's transaction.
// An already-ACTIVE project is a no-op so the quotation-accepted hook can
// replay safely; COMPLETED and CANCELLED projects reject the change.
func ActivateOnTx(ctx context.Context, tx pgx.Tx, projectID int64) (bool, error) {
	var status Status
	err := tx.QueryRow(ctx,
		`SELECT status FROM projects WHERE id=$1 FOR UPDATE`, projectID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("load project status: %w", err)
	}
	if status == StatusActive {
		return false, nil
	}
	if !status.CanTransitionTo(StatusActive) {
		return false, fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, status, StatusActive)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE projects SET status=$2, updated_at=NOW() WHERE id=$1`,
		projectID, string(StatusActive)); err != nil {
		return false, fmt.Errorf("activate project: %w", err)
	}
	return true, nil
}
