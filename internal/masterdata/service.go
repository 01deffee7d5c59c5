package masterdata

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/wellkorea/wellkorea-erp/internal/shared"
)

// AuditPort records master data changes.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// Service owns the product, customer, and vendor registries.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// SetAuditLogger wires the audit sink after construction.
func (s *Service) SetAuditLogger(a AuditPort) { s.audit = a }

func (s *Service) ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, actorID int64, req ProductRequest) (*Product, error) {
	p := &Product{
		Code:      strings.TrimSpace(req.Code),
		Name:      strings.TrimSpace(req.Name),
		Unit:      req.Unit,
		UnitPrice: req.UnitPrice,
		IsActive:  true,
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	id, err := s.repo.InsertProduct(ctx, p)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "PRODUCT_CREATE", "product", id, map[string]any{"code": p.Code})
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) UpdateProduct(ctx context.Context, actorID, id int64, req ProductRequest) (*Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Code = strings.TrimSpace(req.Code)
	p.Name = strings.TrimSpace(req.Name)
	p.Unit = req.Unit
	p.UnitPrice = req.UnitPrice
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "PRODUCT_UPDATE", "product", id, map[string]any{"code": p.Code})
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) ListCustomers(ctx context.Context, filter ListFilter) ([]Customer, int, error) {
	return s.repo.ListCustomers(ctx, filter)
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) CreateCustomer(ctx context.Context, actorID int64, req PartyRequest) (*Customer, error) {
	c := &Customer{
		Code:     strings.TrimSpace(req.Code),
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Phone:    req.Phone,
		Address:  req.Address,
		IsActive: true,
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
	id, err := s.repo.InsertCustomer(ctx, c)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "CUSTOMER_CREATE", "customer", id, map[string]any{"code": c.Code})
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) UpdateCustomer(ctx context.Context, actorID, id int64, req PartyRequest) (*Customer, error) {
	c, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Code = strings.TrimSpace(req.Code)
	c.Name = strings.TrimSpace(req.Name)
	c.Email = strings.TrimSpace(req.Email)
	c.Phone = req.Phone
	c.Address = req.Address
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
	if err := s.repo.UpdateCustomer(ctx, c); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "CUSTOMER_UPDATE", "customer", id, map[string]any{"code": c.Code})
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) ListVendors(ctx context.Context, filter ListFilter) ([]Vendor, int, error) {
	return s.repo.ListVendors(ctx, filter)
}

func (s *Service) GetVendor(ctx context.Context, id int64) (*Vendor, error) {
	return s.repo.GetVendor(ctx, id)
}

func (s *Service) CreateVendor(ctx context.Context, actorID int64, req PartyRequest) (*Vendor, error) {
	v := &Vendor{
		Code:     strings.TrimSpace(req.Code),
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Phone:    req.Phone,
		Address:  req.Address,
		IsActive: true,
	}
	if req.IsActive != nil {
		v.IsActive = *req.IsActive
	}
	id, err := s.repo.InsertVendor(ctx, v)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "VENDOR_CREATE", "vendor", id, map[string]any{"code": v.Code})
	return s.repo.GetVendor(ctx, id)
}

func (s *Service) UpdateVendor(ctx context.Context, actorID, id int64, req PartyRequest) (*Vendor, error) {
	v, err := s.repo.GetVendor(ctx, id)
	if err != nil {
		return nil, err
	}
	v.Code = strings.TrimSpace(req.Code)
	v.Name = strings.TrimSpace(req.Name)
	v.Email = strings.TrimSpace(req.Email)
	v.Phone = req.Phone
	v.Address = req.Address
	if req.IsActive != nil {
		v.IsActive = *req.IsActive
	}
	if err := s.repo.UpdateVendor(ctx, v); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "VENDOR_UPDATE", "vendor", id, map[string]any{"code": v.Code})
	return s.repo.GetVendor(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       time.Now().UTC(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", "action", action, "entity", entity, "id", entityID, "error", err)
	}
}

// ProductCatalog, CustomerDirectory, and VendorDirectory expose existence
// checks to the document services without leaking the whole registry.
// Inactive records fail the check, so new documents cannot reference them.

type ProductCatalog struct{ Service *Service }

func (c ProductCatalog) Exists(ctx context.Context, productID int64) (bool, error) {
	return c.Service.repo.ProductExists(ctx, productID)
}

type CustomerDirectory struct{ Service *Service }

func (d CustomerDirectory) Exists(ctx context.Context, customerID int64) (bool, error) {
	return d.Service.repo.CustomerExists(ctx, customerID)
}

type VendorDirectory struct{ Service *Service }

func (d VendorDirectory) Exists(ctx context.Context, vendorID int64) (bool, error) {
	return d.Service.repo.VendorExists(ctx, vendorID)
}
