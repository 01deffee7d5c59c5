package quotation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wellkorea/wellkorea-erp/internal/platform/db"
)

// Repository is the read surface plus the transactional entry point used by
// the service.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Quotation, error)
	HeadForProject(ctx context.Context, projectID int64) (*Quotation, error)
	List(ctx context.Context, filter ListFilter) ([]Quotation, int, error)
}

// TxRepository is the mutation surface, bound to one open transaction.
// Tx exposes the underlying transaction so integration hooks run on it.
type TxRepository interface {
	Tx() pgx.Tx
	GetForUpdate(ctx context.Context, id int64) (*Quotation, error)
	Insert(ctx context.Context, q *Quotation) (int64, error)
	ReplaceLines(ctx context.Context, quotationID int64, lines []LineItem, total float64) error
	UpdateStatus(ctx context.Context, id int64, status Status, actorID int64, reason *string) error
	MaxVersion(ctx context.Context, projectID int64) (int, error)
	SoftDelete(ctx context.Context, id int64) error
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

const quotationColumns = `id, project_id, version, status, quote_date, validity_days,
total_amount, created_by, submitted_at, approved_at, approver_id,
rejection_reason, deleted_at, created_at, updated_at`

func scanQuotation(row pgx.Row) (*Quotation, error) {
	var q Quotation
	err := row.Scan(
		&q.ID, &q.ProjectID, &q.Version, &q.Status, &q.QuoteDate, &q.ValidityDays,
		&q.TotalAmount, &q.CreatedBy, &q.SubmittedAt, &q.ApprovedAt, &q.ApproverID,
		&q.RejectionReason, &q.DeletedAt, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Quotation, error) {
	q, err := scanQuotation(r.db.QueryRow(ctx,
		`SELECT `+quotationColumns+` FROM quotations WHERE id=$1 AND deleted_at IS NULL`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// HeadForProject returns the highest non-deleted version for a project, the
// row that currently represents the project's commercial terms.
func (r *repository) HeadForProject(ctx context.Context, projectID int64) (*Quotation, error) {
	q, err := scanQuotation(r.db.QueryRow(ctx,
		`SELECT `+quotationColumns+` FROM quotations
		 WHERE project_id=$1 AND deleted_at IS NULL
		 ORDER BY version DESC LIMIT 1`, projectID))
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (*Quotation, error) {
	q, err := scanQuotation(r.db.QueryRow(ctx,
		`SELECT `+quotationColumns+` FROM quotations WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *repository) loadLines(ctx context.Context, q *Quotation) error {
	rows, err := r.db.Query(ctx,
		`SELECT id, quotation_id, product_id, quantity, unit_price, line_no
		 FROM quotation_lines WHERE quotation_id=$1 ORDER BY line_no`, q.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var l LineItem
		if err := rows.Scan(&l.ID, &l.QuotationID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.LineNo); err != nil {
			return err
		}
		q.Lines = append(q.Lines, l)
	}
	return rows.Err()
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Quotation, int, error) {
	where := ` WHERE deleted_at IS NULL`
	args := []any{}
	if filter.ProjectID > 0 {
		args = append(args, filter.ProjectID)
		where += fmt.Sprintf(" AND project_id=$%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status=$%d", len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM quotations`+where, args...).Scan(&total); err != nil {
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
		`SELECT `+quotationColumns+` FROM quotations`+where+
			fmt.Sprintf(` ORDER BY project_id, version DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Quotation
	for rows.Next() {
		var q Quotation
		if err := rows.Scan(
			&q.ID, &q.ProjectID, &q.Version, &q.Status, &q.QuoteDate, &q.ValidityDays,
			&q.TotalAmount, &q.CreatedBy, &q.SubmittedAt, &q.ApprovedAt, &q.ApproverID,
			&q.RejectionReason, &q.DeletedAt, &q.CreatedAt, &q.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		result = append(result, q)
	}
	return result, total, rows.Err()
}

func (r *repository) Insert(ctx context.Context, q *Quotation) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO quotations (project_id, version, status, quote_date, validity_days,
		 total_amount, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		 RETURNING id`,
		q.ProjectID, q.Version, q.Status, q.QuoteDate, q.ValidityDays,
		q.TotalAmount, q.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert quotation: %w", err)
	}
	for i := range q.Lines {
		q.Lines[i].QuotationID = id
		if err := r.insertLine(ctx, q.Lines[i]); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (r *repository) insertLine(ctx context.Context, l LineItem) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO quotation_lines (quotation_id, product_id, quantity, unit_price, line_no)
		 VALUES ($1, $2, $3, $4, $5)`,
		l.QuotationID, l.ProductID, l.Quantity, l.UnitPrice, l.LineNo)
	if err != nil {
		return fmt.Errorf("insert quotation line: %w", err)
	}
	return nil
}

// ReplaceLines swaps the full line set and stores the recomputed total in the
// same statement batch, so the stored total never drifts from its lines.
func (r *repository) ReplaceLines(ctx context.Context, quotationID int64, lines []LineItem, total float64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM quotation_lines WHERE quotation_id=$1`, quotationID); err != nil {
		return fmt.Errorf("delete quotation lines: %w", err)
	}
	for _, l := range lines {
		l.QuotationID = quotationID
		if err := r.insertLine(ctx, l); err != nil {
			return err
		}
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE quotations SET total_amount=$2, updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`,
		quotationID, total)
	if err != nil {
		return fmt.Errorf("update quotation total: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus stamps status-specific audit fields along with the new
// status. approved_at/approver_id are written once and survive the
// SENDING→APPROVED revert.
func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status, actorID int64, reason *string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quotations SET
			status = $2,
			submitted_at = CASE WHEN $2 = 'PENDING' AND submitted_at IS NULL THEN NOW() ELSE submitted_at END,
			approved_at = CASE WHEN $2 = 'APPROVED' AND approved_at IS NULL THEN NOW() ELSE approved_at END,
			approver_id = CASE WHEN $2 = 'APPROVED' AND approver_id IS NULL THEN $3 ELSE approver_id END,
			rejection_reason = CASE WHEN $2 = 'REJECTED' THEN $4 ELSE rejection_reason END,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		id, status, actorID, reason)
	if err != nil {
		return fmt.Errorf("update quotation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) MaxVersion(ctx context.Context, projectID int64) (int, error) {
	var max int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM quotations WHERE project_id=$1 AND deleted_at IS NULL`,
		projectID).Scan(&max)
	if err != nil {
		return 0, err
	}
	return max, nil
}

func (r *repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE quotations SET deleted_at=NOW(), updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft delete quotation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
