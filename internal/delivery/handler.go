package delivery

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wellkorea/wellkorea-erp/internal/platform/httpx"
	"github.com/wellkorea/wellkorea-erp/internal/quotation"
	"github.com/wellkorea/wellkorea-erp/internal/rbac"
	"github.com/wellkorea/wellkorea-erp/internal/shared"
)

// Handler exposes delivery recording over HTTP.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validate    *validator.Validate
	rbac        rbac.Middleware
	idempotency *shared.IdempotencyStore
}

// NewHandler constructs the delivery HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		rbac:     rbac,
	}
}

// SetIdempotencyStore enables Idempotency-Key handling on create. Optional;
// without it retried POSTs create duplicate delivery records.
func (h *Handler) SetIdempotencyStore(store *shared.IdempotencyStore) {
	h.idempotency = store
}

// MountRoutes registers delivery routes onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAny(shared.PermDeliveryView))
		gr.Get("/", h.list)
		gr.Get("/remaining", h.remaining)
		gr.Get("/{id}", h.get)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAll(shared.PermDeliveryCreate))
		gr.Post("/", h.create)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAll(shared.PermDeliveryStatus))
		gr.Post("/{id}/status", h.updateStatus)
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
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, d)
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
	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), idemKey, "delivery"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Conflict(w, r, "delivery already recorded for this idempotency key")
				return
			}
			h.respondError(w, r, err)
			return
		}
	}
	d, err := h.service.Create(r.Context(), req, shared.ActorID(r.Context()))
	if err != nil {
		if idemKey != "" && h.idempotency != nil {
			// Release the key so the client's retry is not rejected.
			if delErr := h.idempotency.Delete(r.Context(), idemKey); delErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusCreated, d)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, r, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, r, err)
		return
	}
	d, err := h.service.UpdateStatus(r.Context(), id, req.Status, shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, d)
}

func (h *Handler) remaining(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.ParseInt(r.URL.Query().Get("project_id"), 10, 64)
	if err != nil || projectID <= 0 {
		httpx.BadRequest(w, r, "project_id is required")
		return
	}
	lines, err := h.service.Remaining(r.Context(), projectID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, map[string]any{"project_id": projectID, "lines": lines})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.BadRequest(w, r, "invalid delivery id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.NotFound(w, r, "delivery not found")
	case errors.Is(err, quotation.ErrNotFound):
		httpx.NotFound(w, r, "quotation not found")
	case errors.Is(err, shared.ErrLockTimeout):
		httpx.Conflict(w, r, "delivery recording is contended, retry shortly")
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrQuotationNotDeliverable),
		errors.Is(err, ErrProductNotQuoted),
		errors.Is(err, ErrNonPositiveQuantity),
		errors.Is(err, ErrDuplicateProduct),
		errors.Is(err, ErrOverDelivery),
		errors.Is(err, ErrNoLines),
		errors.Is(err, ErrNoGoverningQuotation),
		errors.Is(err, ErrQuotationProjectMismatch):
		httpx.Unprocessable(w, r, err.Error())
	default:
		h.logger.Error("delivery request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Internal(w, r)
	}
}
