package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wellkorea/wellkorea-erp/internal/platform/db"
)

// Repository is the read side plus the transaction entry point.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, filter ListFilter) ([]User, int, error)
	UpdateUser(ctx context.Context, u *User) error
	SetPassword(ctx context.Context, id int64, hash string) error
	RolesForUser(ctx context.Context, userID int64) ([]Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (*Role, error)
	DeleteRole(ctx context.Context, id int64) error
}

// TxRepository exposes the mutations that must run inside a transaction
// opened by WithTx.
type TxRepository interface {
	Tx() pgx.Tx
	InsertUser(ctx context.Context, u *User) (int64, error)
	InsertRole(ctx context.Context, role *Role) (int64, error)
	UpdateRole(ctx context.Context, role *Role) error
	ReplaceRolePermissions(ctx context.Context, roleID int64, perms []string) error
	ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
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

const userColumns = `id, email, name, password_hash, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *repository) GetUser(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (r *repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, strings.TrimSpace(email)))
}

func (r *repository) ListUsers(ctx context.Context, filter ListFilter) ([]User, int, error) {
	where := ""
	args := []any{}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += fmt.Sprintf(" AND (email ILIKE $%d OR name ILIKE $%d)", len(args), len(args))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		where += fmt.Sprintf(" AND is_active=$%d", len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE 1=1`+where, args...).Scan(&total); err != nil {
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
		`SELECT `+userColumns+` FROM users WHERE 1=1`+where+
			fmt.Sprintf(` ORDER BY id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, u)
	}
	return result, total, rows.Err()
}

func (r *repository) UpdateUser(ctx context.Context, u *User) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET name=$2, is_active=$3, updated_at=NOW() WHERE id=$1`,
		u.ID, u.Name, u.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SetPassword(ctx context.Context, id int64, hash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// roleQuery aggregates each role's permissions into a text array so one scan
// yields the full Role.
const roleQuery = `SELECT r.id, r.name, r.description,
COALESCE(array_agg(rp.permission ORDER BY rp.permission) FILTER (WHERE rp.permission IS NOT NULL), '{}'),
r.created_at, r.updated_at
FROM roles r
LEFT JOIN role_permissions rp ON rp.role_id = r.id`

func scanRoles(rows pgx.Rows) ([]Role, error) {
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Permissions,
			&role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *repository) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := r.db.Query(ctx,
		roleQuery+` JOIN user_roles ur ON ur.role_id = r.id WHERE ur.user_id=$1
GROUP BY r.id ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	return scanRoles(rows)
}

func (r *repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.db.Query(ctx, roleQuery+` GROUP BY r.id ORDER BY r.name`)
	if err != nil {
		return nil, err
	}
	return scanRoles(rows)
}

func (r *repository) GetRole(ctx context.Context, id int64) (*Role, error) {
	var role Role
	err := r.db.QueryRow(ctx, roleQuery+` WHERE r.id=$1 GROUP BY r.id`, id).Scan(
		&role.ID, &role.Name, &role.Description, &role.Permissions,
		&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	return &role, nil
}

// DeleteRole removes a role. The user_roles foreign key blocks deleting a
// role that is still assigned.
func (r *repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM roles WHERE id=$1`, id)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23503" {
			return ErrRoleInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (r *repository) InsertUser(ctx context.Context, u *User) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (email, name, password_hash, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 RETURNING id`,
		u.Email, u.Name, u.PasswordHash, u.IsActive).Scan(&id)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return 0, ErrDuplicateEmail
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) InsertRole(ctx context.Context, role *Role) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO roles (name, description, created_at, updated_at)
		 VALUES ($1, $2, NOW(), NOW())
		 RETURNING id`,
		role.Name, role.Description).Scan(&id)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return 0, ErrDuplicateRole
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) UpdateRole(ctx context.Context, role *Role) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE roles SET name=$2, description=$3, updated_at=NOW() WHERE id=$1`,
		role.ID, role.Name, role.Description)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return ErrDuplicateRole
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (r *repository) ReplaceRolePermissions(ctx context.Context, roleID int64, perms []string) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id=$1`, roleID); err != nil {
		return err
	}
	if len(perms) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission)
		 SELECT $1, unnest($2::text[])`, roleID, perms)
	return err
}

func (r *repository) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM user_roles WHERE user_id=$1`, userID); err != nil {
		return err
	}
	if len(roleIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id, created_at)
		 SELECT $1, unnest($2::bigint[]), NOW()`, userID, roleIDs)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23503" {
			if strings.Contains(pgErr.ConstraintName, "role_id") {
				return ErrRoleNotFound
			}
			return ErrNotFound
		}
		return err
	}
	return nil
}
