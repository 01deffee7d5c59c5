package audit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wellkorea/wellkorea-erp/internal/platform/httpx"
	"github.com/wellkorea/wellkorea-erp/internal/rbac"
	"github.com/wellkorea/wellkorea-erp/internal/shared"
)

// Handler exposes the audit timeline over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the audit HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers audit routes onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAny(shared.PermAuditView))
		gr.Get("/", h.timeline)
		gr.Get("/export", h.exportCSV)
	})
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	items, total, err := h.service.Timeline(r.Context(), filter)
	if err != nil {
		h.logger.Error("audit timeline failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Internal(w, r)
		return
	}
	httpx.JSON(w, r, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "audit-"+time.Now().UTC().Format("20060102")+".csv"))
	if err := h.service.WriteCSV(r.Context(), w, filter); err != nil {
		// Headers are already out, so the client sees a truncated file.
		h.logger.Error("audit export failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}

func (h *Handler) parseFilter(w http.ResponseWriter, r *http.Request) (TimelineFilter, bool) {
	q := r.URL.Query()
	filter := TimelineFilter{
		Entity: q.Get("entity"),
		Action: q.Get("action"),
	}
	if v := q.Get("entity_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.BadRequest(w, r, "entity_id must be an integer")
			return TimelineFilter{}, false
		}
		filter.EntityID = id
	}
	if v := q.Get("actor_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.BadRequest(w, r, "actor_id must be an integer")
			return TimelineFilter{}, false
		}
		filter.ActorID = id
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.BadRequest(w, r, "from must be a YYYY-MM-DD date")
			return TimelineFilter{}, false
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.BadRequest(w, r, "to must be a YYYY-MM-DD date")
			return TimelineFilter{}, false
		}
		// Inclusive of the named day; the repository filters occurred_at < To.
		filter.To = t.AddDate(0, 0, 1)
	}
	if v := q.Get("page"); v != "" {
		filter.Page, _ = strconv.Atoi(v)
	}
	if v := q.Get("per_page"); v != "" {
		filter.PerPage, _ = strconv.Atoi(v)
	}
	return filter, true
}
