package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-travel/meridian/internal/fincase"
	"github.com/meridian-travel/meridian/internal/shared"
)

const defaultSweepLimit = 100

// NewDraftSweepHandler processes TaskDraftSweep tasks: draft cases idle
// longer than maxIdle are cancelled through the normal engine path, which
// releases every record they still hold.
func NewDraftSweepHandler(engine *fincase.Service, maxIdle time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		payload, err := decodePayload[DraftSweepPayload](t)
		if err != nil {
			return err
		}
		limit := payload.Limit
		if limit <= 0 {
			limit = defaultSweepLimit
		}
		cutoff := time.Now().Add(-maxIdle)
		swept, err := engine.SweepStaleDrafts(ctx, cutoff, limit)
		if err != nil {
			logger.Error("draft sweep failed", slog.Int("swept", swept), slog.Any("error", err))
			return err
		}
		if swept > 0 {
			logger.Info("draft sweep finished", slog.Int("swept", swept))
		}
		return nil
	}
}

// NewIdempotencyCleanupHandler processes TaskIdempotencyCleanup tasks.
func NewIdempotencyCleanupHandler(store *shared.IdempotencyStore, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		if err := store.Cleanup(ctx, retention); err != nil {
			logger.Error("idempotency cleanup failed", slog.Any("error", err))
			return err
		}
		return nil
	}
}
