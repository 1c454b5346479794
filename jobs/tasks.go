// Package jobs wires background maintenance tasks through Asynq. Everything
// operational runs inside the HTTP request lifetime; jobs only handle
// housekeeping that no request triggers.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDraftSweep cancels draft cases idle past the configured window,
	// releasing their record locks.
	TaskDraftSweep = "fincase:draft_sweep"
	// TaskIdempotencyCleanup drops idempotency keys past retention.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// DraftSweepPayload bounds one sweep run.
type DraftSweepPayload struct {
	Limit int `json:"limit"`
}

// NewDraftSweepTask constructs an Asynq task.
func NewDraftSweepTask(payload DraftSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDraftSweep, data), nil
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

func decodePayload[T any](t *asynq.Task) (T, error) {
	var payload T
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, asynq.SkipRetry
	}
	return payload, nil
}
