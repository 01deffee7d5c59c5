package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wellkorea/wellkorea-erp/internal/ap"
	"github.com/wellkorea/wellkorea-erp/internal/audit"
	"github.com/wellkorea/wellkorea-erp/internal/auth"
	"github.com/wellkorea/wellkorea-erp/internal/delivery"
	"github.com/wellkorea/wellkorea-erp/internal/invoice"
	"github.com/wellkorea/wellkorea-erp/internal/masterdata"
	"github.com/wellkorea/wellkorea-erp/internal/observability"
	"github.com/wellkorea/wellkorea-erp/internal/procurement"
	"github.com/wellkorea/wellkorea-erp/internal/project"
	"github.com/wellkorea/wellkorea-erp/internal/quotation"
	"github.com/wellkorea/wellkorea-erp/internal/rbac"
	"github.com/wellkorea/wellkorea-erp/internal/shared"
	"github.com/wellkorea/wellkorea-erp/internal/users"
	"github.com/wellkorea/wellkorea-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager

	AuthHandler        *auth.Handler
	ProjectHandler     *project.Handler
	QuotationHandler   *quotation.Handler
	DeliveryHandler    *delivery.Handler
	ProcurementHandler *procurement.Handler
	APHandler          *ap.Handler
	InvoiceHandler     *invoice.Handler
	MasterDataHandler  *masterdata.Handler
	UsersHandler       *users.Handler
	PermissionsHandler *rbac.Handler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi router with the full API surface.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.Route("/projects", params.ProjectHandler.MountRoutes)
		r.Route("/quotations", params.QuotationHandler.MountRoutes)
		r.Route("/deliveries", params.DeliveryHandler.MountRoutes)
		r.Route("/purchase-orders", params.ProcurementHandler.MountRoutes)
		r.Route("/payables", params.APHandler.MountRoutes)
		r.Route("/invoices", params.InvoiceHandler.MountRoutes)
		r.Route("/masterdata", params.MasterDataHandler.MountRoutes)
		r.Route("/users", params.UsersHandler.MountRoutes)
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		r.Route("/audit", params.AuditHandler.MountRoutes)
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
