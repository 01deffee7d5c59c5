package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists products, customers, and vendors. All operations are
// single statements, so no transaction entry point is needed.
type Repository interface {
	ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	InsertProduct(ctx context.Context, p *Product) (int64, error)
	UpdateProduct(ctx context.Context, p *Product) error
	ProductExists(ctx context.Context, id int64) (bool, error)

	ListCustomers(ctx context.Context, filter ListFilter) ([]Customer, int, error)
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
	InsertCustomer(ctx context.Context, c *Customer) (int64, error)
	UpdateCustomer(ctx context.Context, c *Customer) error
	CustomerExists(ctx context.Context, id int64) (bool, error)

	ListVendors(ctx context.Context, filter ListFilter) ([]Vendor, int, error)
	GetVendor(ctx context.Context, id int64) (*Vendor, error)
	InsertVendor(ctx context.Context, v *Vendor) (int64, error)
	UpdateVendor(ctx context.Context, v *Vendor) error
	VendorExists(ctx context.Context, id int64) (bool, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// listArgs turns the shared filter into a WHERE suffix plus LIMIT/OFFSET
// args. Search matches code and name.
func listArgs(filter ListFilter) (string, []any) {
	where := ""
	args := []any{}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += fmt.Sprintf(" AND (code ILIKE $%d OR name ILIKE $%d)", len(args), len(args))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		where += fmt.Sprintf(" AND is_active=$%d", len(args))
	}
	return where, args
}

func pageArgs(filter ListFilter, args []any) (string, []any) {
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	return fmt.Sprintf(" ORDER BY name, id LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}

func mapInsertErr(err error) error {
	if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
		return ErrDuplicateCode
	}
	return err
}

const productColumns = `id, code, name, unit, unit_price, is_active, created_at, updated_at`

func (r *repository) ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	where, args := listArgs(filter)

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM products WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	suffix, args := pageArgs(filter, args)
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE 1=1`+where+suffix, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Unit, &p.UnitPrice,
			&p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, p)
	}
	return result, total, rows.Err()
}

func (r *repository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id=$1`, id).Scan(
		&p.ID, &p.Code, &p.Name, &p.Unit, &p.UnitPrice, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) InsertProduct(ctx context.Context, p *Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO products (code, name, unit, unit_price, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		 RETURNING id`,
		p.Code, p.Name, p.Unit, p.UnitPrice, p.IsActive).Scan(&id)
	if err != nil {
		return 0, mapInsertErr(err)
	}
	return id, nil
}

func (r *repository) UpdateProduct(ctx context.Context, p *Product) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET code=$2, name=$3, unit=$4, unit_price=$5, is_active=$6, updated_at=NOW()
		 WHERE id=$1`,
		p.ID, p.Code, p.Name, p.Unit, p.UnitPrice, p.IsActive)
	if err != nil {
		return mapInsertErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ProductExists reports whether the product exists and is active. Inactive
// products cannot be referenced by new documents.
func (r *repository) ProductExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE id=$1 AND is_active)`, id).Scan(&exists)
	return exists, err
}

const customerColumns = `id, code, name, email, phone, address, is_active, created_at, updated_at`

func (r *repository) ListCustomers(ctx context.Context, filter ListFilter) ([]Customer, int, error) {
	where, args := listArgs(filter)

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM customers WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	suffix, args := pageArgs(filter, args)
	rows, err := r.pool.Query(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE 1=1`+where+suffix, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Email, &c.Phone, &c.Address,
			&c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, c)
	}
	return result, total, rows.Err()
}

func (r *repository) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id=$1`, id).Scan(
		&c.ID, &c.Code, &c.Name, &c.Email, &c.Phone, &c.Address,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) InsertCustomer(ctx context.Context, c *Customer) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO customers (code, name, email, phone, address, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 RETURNING id`,
		c.Code, c.Name, c.Email, c.Phone, c.Address, c.IsActive).Scan(&id)
	if err != nil {
		return 0, mapInsertErr(err)
	}
	return id, nil
}

func (r *repository) UpdateCustomer(ctx context.Context, c *Customer) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE customers SET code=$2, name=$3, email=$4, phone=$5, address=$6, is_active=$7, updated_at=NOW()
		 WHERE id=$1`,
		c.ID, c.Code, c.Name, c.Email, c.Phone, c.Address, c.IsActive)
	if err != nil {
		return mapInsertErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CustomerExists reports whether the customer exists and is active.
func (r *repository) CustomerExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM customers WHERE id=$1 AND is_active)`, id).Scan(&exists)
	return exists, err
}

const vendorColumns = `id, code, name, email, phone, address, is_active, created_at, updated_at`

func (r *repository) ListVendors(ctx context.Context, filter ListFilter) ([]Vendor, int, error) {
	where, args := listArgs(filter)

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM vendors WHERE 1=1`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	suffix, args := pageArgs(filter, args)
	rows, err := r.pool.Query(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE 1=1`+where+suffix, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Vendor
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.Code, &v.Name, &v.Email, &v.Phone, &v.Address,
			&v.IsActive, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, v)
	}
	return result, total, rows.Err()
}

func (r *repository) GetVendor(ctx context.Context, id int64) (*Vendor, error) {
	var v Vendor
	err := r.pool.QueryRow(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE id=$1`, id).Scan(
		&v.ID, &v.Code, &v.Name, &v.Email, &v.Phone, &v.Address,
		&v.IsActive, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *repository) InsertVendor(ctx context.Context, v *Vendor) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO vendors (code, name, email, phone, address, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 RETURNING id`,
		v.Code, v.Name, v.Email, v.Phone, v.Address, v.IsActive).Scan(&id)
	if err != nil {
		return 0, mapInsertErr(err)
	}
	return id, nil
}

func (r *repository) UpdateVendor(ctx context.Context, v *Vendor) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE vendors SET code=$2, name=$3, email=$4, phone=$5, address=$6, is_active=$7, updated_at=NOW()
		 WHERE id=$1`,
		v.ID, v.Code, v.Name, v.Email, v.Phone, v.Address, v.IsActive)
	if err != nil {
		return mapInsertErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// VendorExists reports whether the vendor exists and is active.
func (r *repository) VendorExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM vendors WHERE id=$1 AND is_active)`, id).Scan(&exists)
	return exists, err
}
