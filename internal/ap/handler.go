package ap

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

// Handler exposes accounts payable over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler constructs the accounts payable HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		rbac:     rbac,
	}
}

// MountRoutes registers accounts payable routes onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAny(shared.PermPayableView))
		gr.Get("/", h.list)
		gr.Get("/due-soon", h.dueSoon)
		gr.Get("/{id}", h.get)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAll(shared.PermPayablePay))
		gr.Post("/", h.create)
		gr.Post("/{id}/payments", h.recordPayment)
		gr.Post("/{id}/cancel", h.cancel)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{}
	if v := r.URL.Query().Get("vendor_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.BadRequest(w, r, "vendor_id must be an integer")
			return
		}
		filter.VendorID = id
	}
	if v := r.URL.Query().Get("cause_type"); v != "" {
		ct := CauseType(v)
		if !ct.IsValid() {
			httpx.BadRequest(w, r, fmt.Sprintf("unknown cause type %q", v))
			return
		}
		filter.CauseType = ct
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = Status(v)
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

func (h *Handler) dueSoon(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httpx.BadRequest(w, r, "days must be a positive integer")
			return
		}
		days = n
	}
	items, err := h.service.DueWithin(r.Context(), days)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, map[string]any{"items": items, "days": days})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, detail)
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
	detail, err := h.service.Create(r.Context(), req, shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusCreated, detail)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req RecordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, r, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, r, err)
		return
	}
	detail, err := h.service.RecordPayment(r.Context(), id, req, shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, detail)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Cancel(r.Context(), id, shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, detail)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.BadRequest(w, r, "invalid payable id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.NotFound(w, r, "accounts payable not found")
	case errors.Is(err, ErrUnknownCauseType),
		errors.Is(err, ErrDuplicateCause),
		errors.Is(err, ErrReservedCause),
		errors.Is(err, ErrVendorNotFound),
		errors.Is(err, ErrCancelled),
		errors.Is(err, ErrAlreadyCancelled),
		errors.Is(err, ErrHasPayments),
		errors.Is(err, ErrNonPositiveAmount),
		errors.Is(err, ErrOverPayment):
		httpx.Unprocessable(w, r, err.Error())
	default:
		h.logger.Error("accounts payable request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Internal(w, r)
	}
}
