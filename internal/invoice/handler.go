package invoice

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wellkorea/wellkorea-erp/internal/platform/httpx"
	"github.com/wellkorea/wellkorea-erp/internal/rbac"
	"github.com/wellkorea/wellkorea-erp/internal/shared"
)

// Handler exposes AR invoices over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler constructs the invoice HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		rbac:     rbac,
	}
}

// MountRoutes registers invoice routes onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAny(shared.PermInvoiceView))
		gr.Get("/", h.list)
		gr.Get("/{id}", h.get)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAll(shared.PermInvoiceIssue))
		gr.Post("/", h.create)
		gr.Post("/{id}/issue", h.issue)
		gr.Post("/{id}/paid", h.markPaid)
		gr.Post("/{id}/void", h.void)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{}
	if v := r.URL.Query().Get("project_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.BadRequest(w, r, "project_id must be an integer")
			return
		}
		filter.ProjectID = id
	}
	if v := r.URL.Query().Get("customer_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.BadRequest(w, r, "customer_id must be an integer")
			return
		}
		filter.CustomerID = id
	}
	if v := r.URL.Query().Get("status"); v != "" {
		st := Status(v)
		if !st.IsValid() {
			httpx.BadRequest(w, r, fmt.Sprintf("unknown status %q", v))
			return
		}
		filter.Status = st
	}
	if v := r.URL.Query().Get("page"); v != "" {
		filter.Page, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		filter.PerPage, _ = strconv.Atoi(v)
	}

	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, inv)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, r, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, r, err)
		return
	}
	inv, err := h.service.Create(r.Context(), req, shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusCreated, inv)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Issue(r.Context(), id, shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, inv)
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.MarkPaid(r.Context(), id, shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, inv)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Void(r.Context(), id, shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, inv)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.BadRequest(w, r, "invalid invoice id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.NotFound(w, r, "invoice not found")
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrProjectNotFound),
		errors.Is(err, ErrCustomerNotFound):
		httpx.Unprocessable(w, r, err.Error())
	default:
		h.logger.Error("invoice request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Internal(w, r)
	}
}
