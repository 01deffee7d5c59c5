package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/wellkorea/wellkorea-erp/internal/ap"
	"github.com/wellkorea/wellkorea-erp/internal/app"
	"github.com/wellkorea/wellkorea-erp/internal/audit"
	"github.com/wellkorea/wellkorea-erp/internal/auth"
	"github.com/wellkorea/wellkorea-erp/internal/delivery"
	"github.com/wellkorea/wellkorea-erp/internal/integration"
	"github.com/wellkorea/wellkorea-erp/internal/invoice"
	"github.com/wellkorea/wellkorea-erp/internal/masterdata"
	"github.com/wellkorea/wellkorea-erp/internal/observability"
	"github.com/wellkorea/wellkorea-erp/internal/platform/cache"
	"github.com/wellkorea/wellkorea-erp/internal/platform/db"
	"github.com/wellkorea/wellkorea-erp/internal/procurement"
	"github.com/wellkorea/wellkorea-erp/internal/project"
	"github.com/wellkorea/wellkorea-erp/internal/quotation"
	"github.com/wellkorea/wellkorea-erp/internal/rbac"
	"github.com/wellkorea/wellkorea-erp/internal/sequence"
	"github.com/wellkorea/wellkorea-erp/internal/shared"
	"github.com/wellkorea/wellkorea-erp/internal/users"
	"github.com/wellkorea/wellkorea-erp/jobs"
	"github.com/wellkorea/wellkorea-erp/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.Connect(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	locker := shared.NewLocker(redisClient, logger)
	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	sequences := sequence.NewProvider(dbpool)

	masterRepo := masterdata.NewRepository(dbpool)
	masterService := masterdata.NewService(masterRepo, logger)
	masterService.SetAuditLogger(auditLogger)
	customers := masterdata.CustomerDirectory{Service: masterService}
	vendors := masterdata.VendorDirectory{Service: masterService}
	products := masterdata.ProductCatalog{Service: masterService}

	projectRepo := project.NewRepository(dbpool)
	projectService := project.NewService(projectRepo, sequences, customers, logger)
	projectService.SetAuditLogger(auditLogger)

	quotationRepo := quotation.NewRepository(dbpool)
	quotationService := quotation.NewService(quotationRepo, projectService, locker, cfg.LockTTL, cfg.LockWait, logger)
	quotationService.SetAuditLogger(auditLogger)
	quotationService.SetApprovalRecorder(approvalRecorder)
	quotationService.SetProductCatalog(products)

	apRepo := ap.NewRepository(dbpool)
	apService := ap.NewService(apRepo, vendors, logger)
	apService.SetAuditLogger(auditLogger)

	hooks := integration.NewHooks(apRepo, logger)
	quotationService.SetIntegrationHandler(hooks)

	procurementRepo := procurement.NewRepository(dbpool)
	procurementService := procurement.NewService(procurementRepo, sequences, vendors, logger)
	procurementService.SetAuditLogger(auditLogger)
	procurementService.SetIntegrationHandler(hooks)

	deliveryRepo := delivery.NewRepository(dbpool)
	deliveryService := delivery.NewService(deliveryRepo, quotationService, locker, cfg.LockTTL, cfg.LockWait, logger)
	deliveryService.SetAuditLogger(auditLogger)

	invoiceRepo := invoice.NewRepository(dbpool)
	invoiceService := invoice.NewService(invoiceRepo, projectService, customers, sequences, logger)
	invoiceService.SetAuditLogger(auditLogger)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, logger)
	usersService.SetAuditLogger(auditLogger)

	authService := auth.NewService(usersRepo, logger)
	authService.SetAuditLogger(auditLogger)

	rbacService := rbac.NewService(dbpool)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	auditService := audit.NewService(audit.NewRepository(dbpool), logger)

	deliveryHandler := delivery.NewHandler(logger, deliveryService, rbacMiddleware)
	deliveryHandler.SetIdempotencyStore(idempotencyStore)
	procurementHandler := procurement.NewHandler(logger, procurementService, rbacMiddleware)
	procurementHandler.SetIdempotencyStore(idempotencyStore)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	quotationService.SetDispatcher(jobsClient)

	reportClient := report.NewClient(cfg.GotenbergURL)
	if err := reportClient.Ping(ctx); err != nil {
		logger.Warn("gotenberg ping", slog.Any("error", err))
	}
	renderer := &report.QuotationRenderer{
		Client:   reportClient,
		Projects: projectService,
		Products: masterService,
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		AuthHandler:        auth.NewHandler(logger, authService, sessionManager),
		ProjectHandler:     project.NewHandler(logger, projectService, rbacMiddleware),
		QuotationHandler:   quotation.NewHandler(logger, quotationService, renderer, rbacMiddleware),
		DeliveryHandler:    deliveryHandler,
		ProcurementHandler: procurementHandler,
		APHandler:          ap.NewHandler(logger, apService, rbacMiddleware),
		InvoiceHandler:     invoice.NewHandler(logger, invoiceService, rbacMiddleware),
		MasterDataHandler:  masterdata.NewHandler(logger, masterService, rbacMiddleware),
		UsersHandler:       users.NewHandler(logger, usersService, rbacMiddleware),
		PermissionsHandler: rbac.NewHandler(logger, rbacService, rbacMiddleware),
		AuditHandler:       audit.NewHandler(logger, auditService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            observability.NewMetrics(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
