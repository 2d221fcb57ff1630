package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/reqflow/internal/app"
	"github.com/odyssey-erp/reqflow/internal/auth"
	jobmetrics "github.com/odyssey-erp/reqflow/internal/jobs"
	"github.com/odyssey-erp/reqflow/internal/notify"
	"github.com/odyssey-erp/reqflow/internal/platform/cache"
	"github.com/odyssey-erp/reqflow/internal/requisition"
	"github.com/odyssey-erp/reqflow/jobs"
)

func main() {
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

	metrics := jobmetrics.NewMetrics(nil)
	inbox := notify.NewInbox(redisClient, cfg.InboxLimit)

	// Reminders raised here go straight to the inbox; the worker is the consumer.
	service := requisition.NewService(stores.Requisitions, workflow,
		requisition.WithNotifier(inbox),
		requisition.WithDirectory(auth.NewService(stores.Users)),
		requisition.WithLogger(logger),
	)

	deliverJob := jobs.NewDeliverJob(inbox, logger, metrics)
	remindJob := jobs.NewRemindJob(service, cfg.ReminderAfter, logger, metrics)

	remindTask, err := jobs.NewReminderTask(cfg.ReminderAfter)
	if err != nil {
		logger.Error("build reminder task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: jobs.RedisOpts(redisClient.Options()),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskNotificationDeliver, Handler: deliverJob.Handle},
			{Type: jobs.TaskRequisitionRemind, Handler: remindJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReminderCron, Task: remindTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
