package auth

import (
	"context"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/wellkorea/wellkorea-erp/internal/shared"
	"github.com/wellkorea/wellkorea-erp/internal/users"
)

// UserSource provides the account lookups authentication needs. The users
// repository satisfies it.
type UserSource interface {
	GetUserByEmail(ctx context.Context, email string) (*users.User, error)
	GetUser(ctx context.Context, id int64) (*users.User, error)
	RolesForUser(ctx context.Context, userID int64) ([]users.Role, error)
}

// AuditPort records login/logout events. Satisfied by *shared.AuditLogger.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service wraps authentication business rules.
type Service struct {
	users  UserSource
	audit  AuditPort
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(users UserSource, logger *slog.Logger) *Service {
	return &Service{users: users, logger: logger}
}

// SetAuditLogger wires the audit trail sink.
func (s *Service) SetAuditLogger(a AuditPort) {
	s.audit = a
}

// Authenticate validates email/password credentials. Unknown accounts,
// deactivated accounts, and wrong passwords all come back as
// shared.ErrInvalidCredentials so responses cannot be used to probe for
// registered emails.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*users.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	s.recordAudit(ctx, user.ID, "LOGIN")
	return user, nil
}

// Logout records the logout event. Session destruction happens at the HTTP
// layer where the cookie lives.
func (s *Service) Logout(ctx context.Context, userID int64) {
	if userID != 0 {
		s.recordAudit(ctx, userID, "LOGOUT")
	}
}

// CurrentUser returns the account with its roles for the session endpoint.
func (s *Service) CurrentUser(ctx context.Context, id int64) (*users.UserDetail, error) {
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	roles, err := s.users.RolesForUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return &users.UserDetail{User: *u, Roles: roles}, nil
}

func (s *Service) recordAudit(ctx context.Context, userID int64, action string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  userID,
		Action:   action,
		Entity:   "user",
		EntityID: userID,
	}); err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}
