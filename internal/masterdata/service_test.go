package masterdata

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memMasterRepo struct {
	mu        sync.Mutex
	nextID    int64
	products  map[int64]*Product
	customers map[int64]*Customer
	vendors   map[int64]*Vendor
}

func newMemMasterRepo() *memMasterRepo {
	return &memMasterRepo{
		products:  make(map[int64]*Product),
		customers: make(map[int64]*Customer),
		vendors:   make(map[int64]*Vendor),
	}
}

func (m *memMasterRepo) ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Product
	for _, p := range m.products {
		if filter.IsActive != nil && p.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (m *memMasterRepo) GetProduct(ctx context.Context, id int64) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memMasterRepo) InsertProduct(ctx context.Context, p *Product) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.products {
		if row.Code == p.Code {
			return 0, ErrDuplicateCode
		}
	}
	m.nextID++
	cp := *p
	cp.ID = m.nextID
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.products[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memMasterRepo) UpdateProduct(ctx context.Context, p *Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	cp.UpdatedAt = time.Now()
	m.products[p.ID] = &cp
	return nil
}

func (m *memMasterRepo) ProductExists(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	return ok && p.IsActive, nil
}

func (m *memMasterRepo) ListCustomers(ctx context.Context, filter ListFilter) ([]Customer, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Customer
	for _, c := range m.customers {
		if filter.IsActive != nil && c.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *memMasterRepo) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memMasterRepo) InsertCustomer(ctx context.Context, c *Customer) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.customers {
		if row.Code == c.Code {
			return 0, ErrDuplicateCode
		}
	}
	m.nextID++
	cp := *c
	cp.ID = m.nextID
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.customers[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memMasterRepo) UpdateCustomer(ctx context.Context, c *Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[c.ID]; !ok {
		return ErrNotFound
	}
	cp := *c
	cp.UpdatedAt = time.Now()
	m.customers[c.ID] = &cp
	return nil
}

func (m *memMasterRepo) CustomerExists(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	return ok && c.IsActive, nil
}

func (m *memMasterRepo) ListVendors(ctx context.Context, filter ListFilter) ([]Vendor, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Vendor
	for _, v := range m.vendors {
		if filter.IsActive != nil && v.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, *v)
	}
	return out, len(out), nil
}

func (m *memMasterRepo) GetVendor(ctx context.Context, id int64) (*Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vendors[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memMasterRepo) InsertVendor(ctx context.Context, v *Vendor) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.vendors {
		if row.Code == v.Code {
			return 0, ErrDuplicateCode
		}
	}
	m.nextID++
	cp := *v
	cp.ID = m.nextID
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.vendors[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memMasterRepo) UpdateVendor(ctx context.Context, v *Vendor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vendors[v.ID]; !ok {
		return ErrNotFound
	}
	cp := *v
	cp.UpdatedAt = time.Now()
	m.vendors[v.ID] = &cp
	return nil
}

func (m *memMasterRepo) VendorExists(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vendors[id]
	return ok && v.IsActive, nil
}

var _ Repository = (*memMasterRepo)(nil)

func newMasterService() (*Service, *memMasterRepo) {
	repo := newMemMasterRepo()
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil))), repo
}

func boolPtr(v bool) *bool { return &v }

func TestService_Products(t *testing.T) {
	svc, _ := newMasterService()
	ctx := context.Background()

	t.Run("create defaults to active and trims the code", func(t *testing.T) {
		p, err := svc.CreateProduct(ctx, 1, ProductRequest{
			Code: " STL-PLATE-10 ", Name: "Steel plate 10mm", Unit: "EA", UnitPrice: 125000,
		})
		require.NoError(t, err)
		assert.Equal(t, "STL-PLATE-10", p.Code)
		assert.True(t, p.IsActive)
	})

	t.Run("rejects duplicate codes", func(t *testing.T) {
		_, err := svc.CreateProduct(ctx, 1, ProductRequest{
			Code: "STL-PLATE-10", Name: "Another plate", Unit: "EA", UnitPrice: 1,
		})
		require.ErrorIs(t, err, ErrDuplicateCode)
	})

	t.Run("update without is_active keeps the current flag", func(t *testing.T) {
		p, err := svc.CreateProduct(ctx, 1, ProductRequest{
			Code: "BOLT-M8", Name: "Bolt M8", Unit: "EA", UnitPrice: 300, IsActive: boolPtr(false),
		})
		require.NoError(t, err)
		require.False(t, p.IsActive)

		updated, err := svc.UpdateProduct(ctx, 1, p.ID, ProductRequest{
			Code: "BOLT-M8", Name: "Bolt M8 zinc", Unit: "EA", UnitPrice: 350,
		})
		require.NoError(t, err)
		assert.Equal(t, "Bolt M8 zinc", updated.Name)
		assert.False(t, updated.IsActive, "omitting is_active must not reactivate the product")
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := svc.GetProduct(ctx, 9999)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestService_CatalogChecks(t *testing.T) {
	svc, _ := newMasterService()
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, 1, ProductRequest{Code: "P-1", Name: "Pipe", Unit: "M", UnitPrice: 900})
	require.NoError(t, err)
	customer, err := svc.CreateCustomer(ctx, 1, PartyRequest{Code: "C-1", Name: "Hanbit Machinery"})
	require.NoError(t, err)
	vendor, err := svc.CreateVendor(ctx, 1, PartyRequest{Code: "V-1", Name: "Dongjin Steel"})
	require.NoError(t, err)

	catalog := ProductCatalog{Service: svc}
	customers := CustomerDirectory{Service: svc}
	vendors := VendorDirectory{Service: svc}

	t.Run("active records pass", func(t *testing.T) {
		ok, err := catalog.Exists(ctx, product.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = customers.Exists(ctx, customer.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = vendors.Exists(ctx, vendor.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("missing records fail", func(t *testing.T) {
		ok, err := customers.Exists(ctx, 404)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("deactivated records fail", func(t *testing.T) {
		_, err := svc.UpdateVendor(ctx, 1, vendor.ID, PartyRequest{
			Code: "V-1", Name: "Dongjin Steel", IsActive: boolPtr(false),
		})
		require.NoError(t, err)

		ok, err := vendors.Exists(ctx, vendor.ID)
		require.NoError(t, err)
		assert.False(t, ok, "deactivated vendors must not back new purchase orders")
	})
}

func TestService_Customers(t *testing.T) {
	svc, _ := newMasterService()
	ctx := context.Background()

	c, err := svc.CreateCustomer(ctx, 7, PartyRequest{
		Code: "ACME", Name: "Acme Trading", Email: " sales@acme.example ", Phone: "02-555-0101",
	})
	require.NoError(t, err)
	assert.Equal(t, "sales@acme.example", c.Email)
	assert.True(t, c.IsActive)

	_, err = svc.CreateVendor(ctx, 7, PartyRequest{Code: "ACME", Name: "Acme Supplies"})
	require.NoError(t, err, "customer and vendor codes live in separate namespaces")

	list, total, err := svc.ListCustomers(ctx, ListFilter{IsActive: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "ACME", list[0].Code)
}
