package quotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/wellkorea/wellkorea-erp/internal/platform/httpx"
	"github.com/wellkorea/wellkorea-erp/internal/rbac"
	"github.com/wellkorea/wellkorea-erp/internal/shared"
)

// DocumentRenderer produces the customer-facing PDF for a quotation.
type DocumentRenderer interface {
	RenderQuotation(ctx context.Context, q *Quotation) ([]byte, error)
}

// Handler exposes the quotation lifecycle over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	renderer DocumentRenderer
	validate *validator.Validate
	rbac     rbac.Middleware
	// documents deduplicates concurrent PDF renders for the same quotation.
	documents singleflight.Group
}

// NewHandler constructs the quotation HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, renderer DocumentRenderer, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		renderer: renderer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		rbac:     rbac,
	}
}

// MountRoutes registers quotation routes onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAny(shared.PermQuotationView))
		gr.Get("/", h.list)
		gr.Get("/{id}", h.get)
		gr.Get("/{id}/document", h.document)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAll(shared.PermQuotationEdit))
		gr.Post("/", h.create)
		gr.Put("/{id}/lines", h.updateLines)
		gr.Post("/{id}/versions", h.newVersion)
		gr.Delete("/{id}", h.remove)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAll(shared.PermQuotationSubmit))
		gr.Post("/{id}/submit", h.submit)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAll(shared.PermQuotationApprove))
		gr.Post("/{id}/approve", h.approve)
		gr.Post("/{id}/reject", h.reject)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAll(shared.PermQuotationSend))
		gr.Post("/{id}/send", h.send)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAll(shared.PermQuotationAccept))
		gr.Post("/{id}/accept", h.accept)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Page:    parseIntQuery(r, "page", 1),
		PerPage: parseIntQuery(r, "per_page", 20),
	}
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

	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, q)
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
	q, err := h.service.Create(r.Context(), req, shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusCreated, q)
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
	q, err := h.service.UpdateLines(r.Context(), id, req, shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, q)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id, actor int64) (*Quotation, error) {
		return h.service.Submit(ctx, id, actor)
	})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id, actor int64) (*Quotation, error) {
		return h.service.Approve(ctx, id, actor)
	})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req RejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, r, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, r, err)
		return
	}
	q, err := h.service.Reject(r.Context(), id, shared.ActorID(r.Context()), req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, q)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id, actor int64) (*Quotation, error) {
		return h.service.Send(ctx, id, actor)
	})
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id, actor int64) (*Quotation, error) {
		return h.service.Accept(ctx, id, actor)
	})
}

func (h *Handler) newVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req NewVersionRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.BadRequest(w, r, "invalid request body")
			return
		}
	}
	q, err := h.service.NewVersion(r.Context(), id, req, shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusCreated, q)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.SoftDelete(r.Context(), id, shared.ActorID(r.Context())); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// document renders the quotation PDF. DRAFT quotations have no customer
// document. Concurrent requests for the same quotation share one render.
func (h *Handler) document(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		httpx.Problem(w, r, httpx.ProblemDetail{
			Title:  "Document Rendering Unavailable",
			Status: http.StatusServiceUnavailable,
			Detail: "document renderer is not configured",
		})
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if !q.Status.AllowsDocument() {
		h.respondError(w, r, fmt.Errorf("%w: status is %s", ErrDocumentNotAvailable, q.Status))
		return
	}

	key := fmt.Sprintf("quotation-doc:%d:%d", q.ID, q.UpdatedAt.UnixNano())
	ch := h.documents.DoChan(key, func() (any, error) {
		return h.renderer.RenderQuotation(context.WithoutCancel(r.Context()), q)
	})
	select {
	case <-r.Context().Done():
		httpx.Problem(w, r, httpx.ProblemDetail{
			Title:  "Request Cancelled",
			Status: http.StatusRequestTimeout,
			Detail: "document rendering was cancelled",
		})
		return
	case res := <-ch:
		if res.Err != nil {
			h.logger.Error("render quotation document",
				slog.Int64("quotation_id", id), slog.Any("error", res.Err))
			httpx.Internal(w, r)
			return
		}
		pdf := res.Val.([]byte)
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("quotation-%d-v%d.pdf", q.ProjectID, q.Version)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pdf)
	}
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actor int64) (*Quotation, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	q, err := fn(r.Context(), id, shared.ActorID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, r, http.StatusOK, q)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.BadRequest(w, r, "invalid quotation id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.NotFound(w, r, "quotation not found")
	case errors.Is(err, shared.ErrLockTimeout):
		httpx.Conflict(w, r, "quotation is being modified by another request, retry shortly")
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrNotEditable),
		errors.Is(err, ErrNoLineItems),
		errors.Is(err, ErrInvalidLine),
		errors.Is(err, ErrVersionNotAllowed),
		errors.Is(err, ErrNotLatestVersion),
		errors.Is(err, ErrNotDeletable),
		errors.Is(err, ErrReasonRequired),
		errors.Is(err, ErrDocumentNotAvailable),
		errors.Is(err, ErrProjectNotFound),
		errors.Is(err, ErrProductNotFound):
		httpx.Unprocessable(w, r, err.Error())
	default:
		h.logger.Error("quotation request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Internal(w, r)
	}
}

func parseIntQuery(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}
