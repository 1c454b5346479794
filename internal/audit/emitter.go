// Package audit persists the immutable trail of finance case transitions:
// one audit entry per transition, plus one booking timeline event when the
// case references a booking. Entries are append-only; nothing in this
// package updates or deletes them.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-travel/meridian/internal/fincase"
)

// Emitter writes audit entries and booking timeline events. It implements
// fincase.Emitter.
type Emitter struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewEmitter constructs an Emitter.
func NewEmitter(pool *pgxpool.Pool, logger *slog.Logger) *Emitter {
	return &Emitter{pool: pool, logger: logger}
}

// Emit records one transition. Both writes are best-effort from the engine's
// point of view, but required fields are validated here so a malformed event
// fails loudly instead of producing a hollow trail entry.
func (e *Emitter) Emit(ctx context.Context, ev fincase.Event) error {
	if e == nil {
		return errors.New("audit emitter not initialised")
	}
	if ev.Action == "" {
		return errors.New("audit event requires an action")
	}
	if ev.CaseID == uuid.Nil {
		return errors.New("audit event requires a case id")
	}
	meta := transitionMeta(ev)
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := e.pool.Exec(ctx, `INSERT INTO audit_entries
(organization_id, action, case_id, by_email, by_actor_id, status_from, status_to, meta, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.OrganizationID, ev.Action, ev.CaseID, ev.ActorEmail, ev.ActorID, ev.StatusFrom, ev.StatusTo, meta, at)
	if err != nil {
		return err
	}
	if ev.BookingRef == "" {
		return nil
	}
	_, err = e.pool.Exec(ctx, `INSERT INTO booking_timeline
(organization_id, booking_ref, type, case_id, by_email, by_actor_id, status_from, status_to, meta, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ev.OrganizationID, ev.BookingRef, ev.Action, ev.CaseID, ev.ActorEmail, ev.ActorID, ev.StatusFrom, ev.StatusTo, meta, at)
	if err != nil {
		e.logger.Error("write booking timeline", slog.String("booking_ref", ev.BookingRef), slog.Any("error", err))
		return err
	}
	return nil
}

// transitionMeta builds the transition-specific payload.
func transitionMeta(ev fincase.Event) []byte {
	meta := map[string]any{}
	if ev.Reason != "" {
		meta["reason"] = ev.Reason
	}
	if ev.ApprovedAmount != nil {
		meta["approved_amount"] = ev.ApprovedAmount.String()
	}
	if ev.PaymentReference != "" {
		meta["payment_reference"] = ev.PaymentReference
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return []byte("{}")
	}
	return raw
}
