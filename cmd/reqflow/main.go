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

	"github.com/odyssey-erp/reqflow/internal/app"
	"github.com/odyssey-erp/reqflow/internal/attachments"
	"github.com/odyssey-erp/reqflow/internal/auth"
	"github.com/odyssey-erp/reqflow/internal/export"
	"github.com/odyssey-erp/reqflow/internal/notify"
	"github.com/odyssey-erp/reqflow/internal/observability"
	"github.com/odyssey-erp/reqflow/internal/platform/cache"
	"github.com/odyssey-erp/reqflow/internal/render"
	"github.com/odyssey-erp/reqflow/internal/requisition"
	"github.com/odyssey-erp/reqflow/internal/signing"
	"github.com/odyssey-erp/reqflow/jobs"
	"github.com/odyssey-erp/reqflow/report"
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

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("open stores", slog.String("driver", cfg.StoreDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer stores.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	workflow, err := app.LoadWorkflow(cfg)
	if err != nil {
		logger.Error("load workflow policy", slog.Any("error", err))
		os.Exit(1)
	}

	blobs, err := attachments.New(cfg.AttachmentDir)
	if err != nil {
		logger.Error("open attachment store", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := jobs.RedisOpts(redisClient.Options())
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	inbox := notify.NewInbox(redisClient, cfg.InboxLimit)
	var notifier requisition.Notifier = notify.NewQueueNotifier(jobClient)
	if !cfg.IsProduction() {
		notifier = notify.Fanout{notifier, notify.NewLogNotifier(logger)}
	}

	authService := auth.NewService(stores.Users)
	service := requisition.NewService(stores.Requisitions, workflow,
		requisition.WithNotifier(notifier),
		requisition.WithAttachments(blobs),
		requisition.WithDirectory(authService),
		requisition.WithPendingStore(signing.NewPendingStore(redisClient)),
		requisition.WithMetrics(metrics),
		requisition.WithLogger(logger),
		requisition.WithSignatureTTL(cfg.SignatureTTL),
		requisition.WithConflictRetries(cfg.ConflictRetries),
	)

	reportClient := report.NewClient(cfg.GotenbergURL)
	documents, err := render.New(reportClient, workflow.Policy().SecondAuditorID)
	if err != nil {
		logger.Error("init document renderer", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Identity:           auth.Middleware(authService, logger),
		AuthHandler:        auth.NewHandler(),
		RequisitionHandler: requisition.NewHandler(logger, service, documents, export.Workbook{}, inbox),
		ReportHandler:      report.NewHandler(reportClient, logger),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
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
