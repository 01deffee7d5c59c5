package users

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/wellkorea/wellkorea-erp/internal/shared"
)

// AuditPort records audit trail entries. Satisfied by *shared.AuditLogger.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service carries user and role management use cases. Password hashes never
// leave this package; authentication lives in the auth package and reads
// users through the repository.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
}

// NewService constructs the users service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// SetAuditLogger wires the audit trail sink.
func (s *Service) SetAuditLogger(a AuditPort) {
	s.audit = a
}

// CreateUser registers an account, hashes the password, and assigns the
// requested roles in the same transaction.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest, actorID int64) (*UserDetail, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: string(hash),
		IsActive:     true,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertUser(ctx, u)
		if err != nil {
			return err
		}
		u.ID = id
		if len(req.RoleIDs) > 0 {
			return tx.ReplaceUserRoles(ctx, id, req.RoleIDs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "USER_CREATE", "user", u.ID, map[string]any{"email": u.Email})
	return s.GetUser(ctx, u.ID)
}

// GetUser returns a user with their roles.
func (s *Service) GetUser(ctx context.Context, id int64) (*UserDetail, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	roles, err := s.repo.RolesForUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return &UserDetail{User: *u, Roles: roles}, nil
}

// ListUsers returns a page of users plus the unpaged total.
func (s *Service) ListUsers(ctx context.Context, filter ListFilter) ([]User, int, error) {
	return s.repo.ListUsers(ctx, filter)
}

// UpdateUser changes the profile name and, when requested, the activation
// state. Deactivated users fail authentication but keep their history.
func (s *Service) UpdateUser(ctx context.Context, id int64, req UpdateUserRequest, actorID int64) (*UserDetail, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Name = strings.TrimSpace(req.Name)
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "USER_UPDATE", "user", id, map[string]any{"is_active": u.IsActive})
	return s.GetUser(ctx, id)
}

// ChangePassword replaces the stored hash.
func (s *Service) ChangePassword(ctx context.Context, id int64, req ChangePasswordRequest, actorID int64) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.SetPassword(ctx, id, string(hash)); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "USER_PASSWORD", "user", id, nil)
	return nil
}

// SetRoles replaces the user's role assignments.
func (s *Service) SetRoles(ctx context.Context, id int64, req SetRolesRequest, actorID int64) (*UserDetail, error) {
	if _, err := s.repo.GetUser(ctx, id); err != nil {
		return nil, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.ReplaceUserRoles(ctx, id, req.RoleIDs)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "USER_ROLES", "user", id, map[string]any{"role_ids": req.RoleIDs})
	return s.GetUser(ctx, id)
}

// ListRoles returns every role with its permissions.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole returns one role with its permissions.
func (s *Service) GetRole(ctx context.Context, id int64) (*Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a role and its permission set atomically. Permissions
// outside the catalog are rejected.
func (s *Service) CreateRole(ctx context.Context, req RoleRequest, actorID int64) (*Role, error) {
	perms, err := normalizeCatalogPermissions(req.Permissions)
	if err != nil {
		return nil, err
	}
	role := &Role{Name: strings.TrimSpace(req.Name), Description: strings.TrimSpace(req.Description)}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertRole(ctx, role)
		if err != nil {
			return err
		}
		role.ID = id
		return tx.ReplaceRolePermissions(ctx, id, perms)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "ROLE_CREATE", "role", role.ID, map[string]any{"name": role.Name})
	return s.repo.GetRole(ctx, role.ID)
}

// UpdateRole renames a role and replaces its permission set atomically.
func (s *Service) UpdateRole(ctx context.Context, id int64, req RoleRequest, actorID int64) (*Role, error) {
	perms, err := normalizeCatalogPermissions(req.Permissions)
	if err != nil {
		return nil, err
	}
	role := &Role{ID: id, Name: strings.TrimSpace(req.Name), Description: strings.TrimSpace(req.Description)}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateRole(ctx, role); err != nil {
			return err
		}
		return tx.ReplaceRolePermissions(ctx, id, perms)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "ROLE_UPDATE", "role", id, map[string]any{"name": role.Name})
	return s.repo.GetRole(ctx, id)
}

// DeleteRole removes an unassigned role.
func (s *Service) DeleteRole(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ROLE_DELETE", "role", id, nil)
	return nil
}

// normalizeCatalogPermissions lowercases, dedups, sorts, and checks every
// permission against the catalog.
func normalizeCatalogPermissions(perms []string) ([]string, error) {
	catalog := make(map[string]struct{})
	for _, p := range shared.AllPermissions() {
		catalog[p] = struct{}{}
	}
	seen := make(map[string]struct{}, len(perms))
	cleaned := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, ok := catalog[p]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, p)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		cleaned = append(cleaned, p)
	}
	sort.Strings(cleaned)
	return cleaned, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: id,
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
