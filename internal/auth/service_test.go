package auth

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wellkorea/wellkorea-erp/internal/shared"
	"github.com/wellkorea/wellkorea-erp/internal/users"
)

type stubUsers struct {
	byEmail map[string]*users.User
	roles   map[int64][]users.Role
}

func (s *stubUsers) GetUserByEmail(_ context.Context, email string) (*users.User, error) {
	u, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, users.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *stubUsers) GetUser(_ context.Context, id int64) (*users.User, error) {
	for _, u := range s.byEmail {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, users.ErrNotFound
}

func (s *stubUsers) RolesForUser(_ context.Context, id int64) ([]users.Role, error) {
	return s.roles[id], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func accountFixture(t *testing.T) *stubUsers {
	t.Helper()
	return &stubUsers{
		byEmail: map[string]*users.User{
			"kim@wellkorea.co.kr": {
				ID: 1, Email: "kim@wellkorea.co.kr", Name: "Kim",
				PasswordHash: hashFor(t, "correct-pass"), IsActive: true,
			},
			"gone@wellkorea.co.kr": {
				ID: 2, Email: "gone@wellkorea.co.kr", Name: "Gone",
				PasswordHash: hashFor(t, "correct-pass"), IsActive: false,
			},
		},
		roles: map[int64][]users.Role{
			1: {{ID: 3, Name: "sales", Permissions: []string{shared.PermQuotationView}}},
		},
	}
}

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()
	svc := NewService(accountFixture(t), discardLogger())

	t.Run("valid credentials", func(t *testing.T) {
		user, err := svc.Authenticate(ctx, "kim@wellkorea.co.kr", "correct-pass")
		require.NoError(t, err)
		assert.Equal(t, int64(1), user.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "kim@wellkorea.co.kr", "wrong-pass")
		require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "nobody@wellkorea.co.kr", "correct-pass")
		require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	})

	t.Run("deactivated account", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "gone@wellkorea.co.kr", "correct-pass")
		require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	})

	t.Run("failures are indistinguishable", func(t *testing.T) {
		_, unknownErr := svc.Authenticate(ctx, "nobody@wellkorea.co.kr", "x-pass")
		_, inactiveErr := svc.Authenticate(ctx, "gone@wellkorea.co.kr", "correct-pass")
		assert.Equal(t, unknownErr.Error(), inactiveErr.Error(),
			"error text must not reveal whether the account exists")
	})
}

func TestService_CurrentUser(t *testing.T) {
	ctx := context.Background()
	svc := NewService(accountFixture(t), discardLogger())

	detail, err := svc.CurrentUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "kim@wellkorea.co.kr", detail.Email)
	require.Len(t, detail.Roles, 1)
	assert.Equal(t, "sales", detail.Roles[0].Name)

	_, err = svc.CurrentUser(ctx, 99)
	require.ErrorIs(t, err, users.ErrNotFound)
}
