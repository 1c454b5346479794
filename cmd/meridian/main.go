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
	"golang.org/x/sync/errgroup"

	"github.com/meridian-travel/meridian/internal/app"
	"github.com/meridian-travel/meridian/internal/audit"
	"github.com/meridian-travel/meridian/internal/auth"
	"github.com/meridian-travel/meridian/internal/fincase"
	"github.com/meridian-travel/meridian/internal/ledger"
	"github.com/meridian-travel/meridian/internal/platform/cache"
	"github.com/meridian-travel/meridian/internal/platform/db"
	"github.com/meridian-travel/meridian/internal/refund"
	"github.com/meridian-travel/meridian/internal/settlement"
	"github.com/meridian-travel/meridian/internal/shared"
	"github.com/meridian-travel/meridian/jobs"
)

func main() {
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
		logger.Warn("redis unavailable, serving without view cache", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	authService := auth.NewService(pool, cfg.JWTSecret, cfg.TokenTTL)
	authHandler := auth.NewHandler(authService, logger)

	idempotencyStore := shared.NewIdempotencyStore(pool)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	var viewCache *fincase.ViewCache
	if redisClient != nil {
		viewCache = fincase.NewViewCache(redisClient, 10*time.Minute)
	}
	caseRepo := fincase.NewRepository(pool, ledgerRepo)
	emitter := audit.NewEmitter(pool, logger)
	engine := fincase.NewService(caseRepo, fincase.NewLockManager(), emitter, viewCache, logger)

	settlementHandler := settlement.NewHandler(logger, engine, idempotencyStore)
	refundHandler := refund.NewHandler(logger, engine, idempotencyStore)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AuthService:       authService,
		AuthHandler:       authHandler,
		LedgerHandler:     ledgerHandler,
		SettlementHandler: settlementHandler,
		RefundHandler:     refundHandler,
		JobHandler:        jobHandler,
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
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
