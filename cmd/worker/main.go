package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/tebahq/teba/internal/app"
	"github.com/tebahq/teba/internal/cashout"
	jobmetrics "github.com/tebahq/teba/internal/jobs"
	"github.com/tebahq/teba/internal/platform/cache"
	"github.com/tebahq/teba/internal/platform/db"
	"github.com/tebahq/teba/internal/sales"
	"github.com/tebahq/teba/internal/shared"
	"github.com/tebahq/teba/internal/stock"
	"github.com/tebahq/teba/jobs"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := jobmetrics.NewMetrics(nil)

	salesService := sales.NewService(logger, sales.NewRepository(pool), auditLogger, idempotencyStore)
	stockService := stock.NewService(stock.NewRepository(pool), redisClient, cfg.LowStockCacheTTL)
	cashoutService := cashout.NewService(logger, cashout.NewRepository(pool), auditLogger)

	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	mailer := &jobs.Mailer{Host: cfg.SMTPHost, Port: cfg.SMTPPort, From: cfg.SMTPFrom, Logger: logger}
	overdueJob := jobs.NewOverdueScanJob(salesService, logger, metrics)
	reorderJob := jobs.NewReorderScanJob(stockService, client, logger, metrics, cfg.AlertEmail)
	snapshotJob := jobs.NewCashoutSnapshotJob(cashoutService, logger, metrics)

	cron, err := jobs.DefaultCron(cfg.AlertEmail)
	if err != nil {
		logger.Error("build cron entries", slog.Any("error", err))
		os.Exit(1)
	}
	for i := range cron {
		cron[i].Options = append(cron[i].Options, asynq.MaxRetry(3))
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: mailer.HandleSendEmail},
			{Type: jobs.TaskTypeOverdueScan, Handler: overdueJob.Handle},
			{Type: jobs.TaskTypeReorderScan, Handler: reorderJob.Handle},
			{Type: jobs.TaskTypeCashoutSnapshot, Handler: snapshotJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
