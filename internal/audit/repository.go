package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wellkorea/wellkorea-erp/internal/shared"
)

// Repository reads audit_logs. Writes go through shared.AuditLogger only;
// this side never mutates.
type Repository interface {
	Timeline(ctx context.Context, filter TimelineFilter) ([]TimelineEntry, int, error)
	TimelineAll(ctx context.Context, filter TimelineFilter, limit int) ([]TimelineEntry, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed timeline reader.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// filterArgs turns the filter into a WHERE suffix plus args. The timeline
// is keyed on the log table's own columns; the actor email comes from a
// join and is not filterable.
func filterArgs(filter TimelineFilter) (string, []any) {
	where := ""
	args := []any{}
	if filter.Entity != "" {
		args = append(args, filter.Entity)
		where += fmt.Sprintf(" AND a.entity=$%d", len(args))
	}
	if filter.EntityID > 0 {
		args = append(args, filter.EntityID)
		where += fmt.Sprintf(" AND a.entity_id=$%d", len(args))
	}
	if filter.ActorID > 0 {
		args = append(args, filter.ActorID)
		where += fmt.Sprintf(" AND a.actor_id=$%d", len(args))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		where += fmt.Sprintf(" AND a.action=$%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where += fmt.Sprintf(" AND a.occurred_at >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where += fmt.Sprintf(" AND a.occurred_at < $%d", len(args))
	}
	return where, args
}

const timelineQuery = `SELECT a.id, a.actor_id, COALESCE(u.email, ''), a.action, a.entity, a.entity_id, a.meta, a.occurred_at
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id
WHERE 1=1`

func (r *repository) Timeline(ctx context.Context, filter TimelineFilter) ([]TimelineEntry, int, error) {
	where, args := filterArgs(filter)

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_logs a WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	suffix := fmt.Sprintf(" ORDER BY a.occurred_at DESC, a.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	entries, err := r.query(ctx, timelineQuery+where+suffix, args)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// TimelineAll streams up to limit rows for exports, newest first.
func (r *repository) TimelineAll(ctx context.Context, filter TimelineFilter, limit int) ([]TimelineEntry, error) {
	where, args := filterArgs(filter)
	args = append(args, limit)
	suffix := fmt.Sprintf(" ORDER BY a.occurred_at DESC, a.id DESC LIMIT $%d", len(args))
	return r.query(ctx, timelineQuery+where+suffix, args)
}

func (r *repository) query(ctx context.Context, sql string, args []any) ([]TimelineEntry, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []TimelineEntry
	for rows.Next() {
		var (
			e    TimelineEntry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorEmail, &e.Action,
			&e.Entity, &e.EntityID, &meta, &e.OccurredAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, fmt.Errorf("decode meta for audit log %d: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
