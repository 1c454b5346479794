package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-travel/meridian/internal/app"
	"github.com/meridian-travel/meridian/internal/audit"
	"github.com/meridian-travel/meridian/internal/fincase"
	"github.com/meridian-travel/meridian/internal/ledger"
	"github.com/meridian-travel/meridian/internal/platform/db"
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

	ledgerRepo := ledger.NewRepository(pool)
	caseRepo := fincase.NewRepository(pool, ledgerRepo)
	emitter := audit.NewEmitter(pool, logger)
	engine := fincase.NewService(caseRepo, fincase.NewLockManager(), emitter, nil, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	sweepTask, err := jobs.NewDraftSweepTask(jobs.DraftSweepPayload{})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDraftSweep, Handler: jobs.NewDraftSweepHandler(engine, cfg.DraftMaxIdle, logger)},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.NewIdempotencyCleanupHandler(idempotencyStore, cfg.IdempotencyRetention, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@every " + cfg.DraftSweepInterval.String(), Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 3 * * *", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
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
