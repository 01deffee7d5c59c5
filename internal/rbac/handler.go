package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wellkorea/wellkorea-erp/internal/platform/httpx"
	"github.com/wellkorea/wellkorea-erp/internal/shared"
)

// Handler exposes the permission catalog and the caller's effective set.
type Handler struct {
	logger  *slog.Logger
	service PermissionSource
	rbac    Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service PermissionSource, rbac Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/mine", h.myPermissions)
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAny(shared.PermUsersView))
		gr.Get("/", h.listCatalog)
	})
}

func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, r, http.StatusOK, map[string]any{"permissions": shared.AllPermissions()})
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	userID := shared.ActorID(r.Context())
	if userID == 0 {
		httpx.Unauthorized(w, r)
		return
	}
	perms, err := h.service.EffectivePermissions(r.Context(), userID)
	if err != nil {
		h.logger.Error("list my permissions", slog.Any("error", err))
		httpx.Internal(w, r)
		return
	}
	httpx.JSON(w, r, http.StatusOK, map[string]any{"permissions": perms})
}
