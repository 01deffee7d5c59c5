package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wellkorea/wellkorea-erp/internal/ap"
	"github.com/wellkorea/wellkorea-erp/internal/app"
	jobmetrics "github.com/wellkorea/wellkorea-erp/internal/jobs"
	"github.com/wellkorea/wellkorea-erp/internal/masterdata"
	"github.com/wellkorea/wellkorea-erp/internal/platform/cache"
	"github.com/wellkorea/wellkorea-erp/internal/platform/db"
	"github.com/wellkorea/wellkorea-erp/internal/project"
	"github.com/wellkorea/wellkorea-erp/internal/quotation"
	"github.com/wellkorea/wellkorea-erp/internal/sequence"
	"github.com/wellkorea/wellkorea-erp/internal/shared"
	"github.com/wellkorea/wellkorea-erp/jobs"
	"github.com/wellkorea/wellkorea-erp/report"
)

func main() {
	enqueue := flag.String("enqueue", "", "enqueue a task by type and exit instead of serving (supported: ap:due-soon)")
	horizon := flag.Int("horizon", jobs.DefaultDueSoonHorizonDays, "due-soon horizon in days for -enqueue ap:due-soon")
	flag.Parse()

	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	if *enqueue != "" {
		if err := runEnqueue(ctx, cfg, *enqueue, *horizon); err != nil {
			logger.Error("enqueue task", slog.String("type", *enqueue), slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("task enqueued", slog.String("type", *enqueue))
		return
	}

	pool, err := db.Connect(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	auditLogger := shared.NewAuditLogger(pool)
	locker := shared.NewLocker(redisClient, logger)
	sequences := sequence.NewProvider(pool)

	masterRepo := masterdata.NewRepository(pool)
	masterService := masterdata.NewService(masterRepo, logger)

	projectRepo := project.NewRepository(pool)
	projectService := project.NewService(projectRepo, sequences, masterdata.CustomerDirectory{Service: masterService}, logger)

	quotationRepo := quotation.NewRepository(pool)
	quotationService := quotation.NewService(quotationRepo, projectService, locker, cfg.LockTTL, cfg.LockWait, logger)
	quotationService.SetAuditLogger(auditLogger)

	apRepo := ap.NewRepository(pool)
	apService := ap.NewService(apRepo, masterdata.VendorDirectory{Service: masterService}, logger)

	reportClient := report.NewClient(cfg.GotenbergURL)
	if err := reportClient.Ping(ctx); err != nil {
		logger.Warn("gotenberg ping", slog.Any("error", err))
	}
	renderer := &report.QuotationRenderer{
		Client:   reportClient,
		Projects: projectService,
		Products: masterService,
	}

	mailer := jobs.LogMailer{Logger: logger, From: cfg.MailFrom}
	metrics := jobmetrics.NewMetrics(nil)

	dispatchJob := &jobs.QuotationDispatchJob{
		Quotations: quotationService,
		Projects:   projectService,
		Customers:  masterService,
		Renderer:   renderer,
		Mailer:     mailer,
		Logger:     logger,
		Metrics:    metrics,
	}
	dueSoonJob := jobs.NewAPDueSoonJob(apService, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), logger, metrics)

	dueSoonTask, err := jobs.NewAPDueSoonTask(jobs.DefaultDueSoonHorizonDays)
	if err != nil {
		logger.Error("build due-soon task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.DefaultIdempotencyRetentionDays)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		Logger:    logger,
		Mailer:    mailer,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeQuotationDispatch, Handler: dispatchJob.Handle},
			{Type: jobs.TaskTypeAPDueSoon, Handler: dueSoonJob.Handle},
			{Type: jobs.TaskTypeIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 8 * * *", Task: dueSoonTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsSrv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler()}
	go func() {
		logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
	}()

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

// runEnqueue pushes a one-off task onto the queue for operators. Quotation
// dispatch is deliberately unsupported: stale dispatch tasks no-op once the
// row leaves SENDING, so re-sending goes through the API.
func runEnqueue(ctx context.Context, cfg *app.Config, taskType string, horizon int) error {
	var (
		task *asynq.Task
		err  error
	)
	switch taskType {
	case jobs.TaskTypeAPDueSoon:
		task, err = jobs.NewAPDueSoonTask(horizon)
	default:
		return fmt.Errorf("unsupported task type %q", taskType)
	}
	if err != nil {
		return err
	}

	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	_, err = client.Enqueue(ctx, task, asynq.MaxRetry(3))
	return err
}
