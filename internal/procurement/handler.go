package procurement

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

// Handler exposes purchase orders over HTTP.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validate    *validator.Validate
	rbac        rbac.Middleware
	idempotency *shared.IdempotencyStore
}

// NewHandler constructs the procurement HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		rbac:     rbac,
	}
}

// SetIdempotencyStore enables Idempotency-Key handling on create. Optional;
// without it retried POSTs create duplicate purchase orders.
func (h *Handler) SetIdempotencyStore(store *shared.IdempotencyStore) {
	h.idempotency = store
}

// MountRoutes registers purchase order routes onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAny(shared.PermPurchaseView))
		gr.Get("/", h.list)
		gr.Get("/{id}", h.get)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAll(shared.PermPurchaseEdit))
		gr.Post("/", h.create)
		gr.Put("/{id}/lines", h.updateLines)
		gr.Post("/{id}/cancel", h.cancel)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAll(shared.PermPurchaseConfirm))
		gr.Post("/{id}/confirm", h.confirm)
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
	po, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, po)
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
		if err := h.idempotency.CheckAndInsert(r.Context(), idemKey, "purchase_order"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Conflict(w, r, "purchase order already created for this idempotency key")
				return
			}
			h.respondError(w, r, err)
			return
		}
	}
	po, err := h.service.Create(r.Context(), req, shared.ActorID(r.Context()))
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
	httpx.JSON(w, r, http.StatusCreated, po)
}

func (h *Handler) updateLines(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req UpdateLinesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, r, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, r, err)
		return
	}
	po, err := h.service.UpdateLines(r.Context(), id, req, shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, po)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	po, err := h.service.Confirm(r.Context(), id, shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, po)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	po, err := h.service.Cancel(r.Context(), id, shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, po)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.BadRequest(w, r, "invalid purchase order id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.NotFound(w, r, "purchase order not found")
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrNotEditable),
		errors.Is(err, ErrNoLines),
		errors.Is(err, ErrInvalidLine),
		errors.Is(err, ErrVendorNotFound):
		httpx.Unprocessable(w, r, err.Error())
	default:
		h.logger.Error("purchase order request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Internal(w, r)
	}
}
