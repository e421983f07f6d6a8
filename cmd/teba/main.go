package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/tebahq/teba/internal/app"
	"github.com/tebahq/teba/internal/cashout"
	"github.com/tebahq/teba/internal/catalog"
	"github.com/tebahq/teba/internal/customers"
	"github.com/tebahq/teba/internal/observability"
	"github.com/tebahq/teba/internal/platform/cache"
	"github.com/tebahq/teba/internal/platform/db"
	"github.com/tebahq/teba/internal/procurement"
	"github.com/tebahq/teba/internal/retail"
	"github.com/tebahq/teba/internal/sales"
	"github.com/tebahq/teba/internal/shared"
	"github.com/tebahq/teba/internal/stock"
	"github.com/tebahq/teba/internal/stocktake"
	"github.com/tebahq/teba/internal/transfers"
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
		logger.Warn("redis unavailable, low stock report will be uncached", slog.Any("error", err))
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

	catalogService := catalog.NewService(catalog.NewRepository(pool))
	catalogHandler := catalog.NewHandler(logger, catalogService)

	stockService := stock.NewService(stock.NewRepository(pool), redisClient, cfg.LowStockCacheTTL)
	stockHandler := stock.NewHandler(logger, stockService)

	procurementService := procurement.NewService(logger, procurement.NewRepository(pool), auditLogger, idempotencyStore)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	salesService := sales.NewService(logger, sales.NewRepository(pool), auditLogger, idempotencyStore)
	salesHandler := sales.NewHandler(logger, salesService)

	transfersService := transfers.NewService(logger, transfers.NewRepository(pool), auditLogger, idempotencyStore)
	transfersHandler := transfers.NewHandler(logger, transfersService)

	retailService := retail.NewService(logger, retail.NewRepository(pool), auditLogger)
	retailHandler := retail.NewHandler(logger, retailService)

	stocktakeService := stocktake.NewService(logger, stocktake.NewRepository(pool), auditLogger)
	stocktakeHandler := stocktake.NewHandler(logger, stocktakeService)

	customersService := customers.NewService(logger, customers.NewRepository(pool), auditLogger)
	customersHandler := customers.NewHandler(logger, customersService)

	cashoutService := cashout.NewService(logger, cashout.NewRepository(pool), auditLogger)
	cashoutHandler := cashout.NewHandler(logger, cashoutService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		CatalogHandler:     catalogHandler,
		StockHandler:       stockHandler,
		ProcurementHandler: procurementHandler,
		SalesHandler:       salesHandler,
		TransfersHandler:   transfersHandler,
		RetailHandler:      retailHandler,
		StockTakeHandler:   stocktakeHandler,
		CustomersHandler:   customersHandler,
		CashoutHandler:     cashoutHandler,
		JobsHandler:        jobsHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}
