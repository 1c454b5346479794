package fincase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-travel/meridian/internal/ledger"
	"github.com/meridian-travel/meridian/internal/platform/db"
)

// PgRepository persists finance cases in PostgreSQL, delegating record lock
// mutations to the ledger repository inside the shared transaction.
type PgRepository struct {
	pool    *pgxpool.Pool
	records *ledger.Repository
}

// NewRepository constructs a PgRepository.
func NewRepository(pool *pgxpool.Pool, records *ledger.Repository) *PgRepository {
	return &PgRepository{pool: pool, records: records}
}

// WithTx runs fn inside one repeatable-read transaction.
func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx, records: r.records})
	})
}

const caseColumns = `id, organization_id, kind, status, currency, scope_ref, period, booking_ref, line_items,
step1_by, step1_email, step1_at, step1_amount, step2_by, step2_email, step2_at,
note, payment_reference, cancel_reason, created_by, created_at, updated_at, closed_at`

var openStatuses = []string{
	string(StatusDraft),
	string(StatusPendingApproval1),
	string(StatusPendingApproval2),
	string(StatusApproved),
}

func scanCase(row pgx.Row) (Case, error) {
	var c Case
	var lineItems []byte
	var step1By, step2By *uuid.UUID
	var step1Email, step2Email, note, paymentRef, cancelReason *string
	var step1At, step2At *time.Time
	var step1Amount *string
	err := row.Scan(&c.ID, &c.OrganizationID, &c.Kind, &c.Status, &c.Currency, &c.ScopeRef, &c.Period, &c.BookingRef, &lineItems,
		&step1By, &step1Email, &step1At, &step1Amount, &step2By, &step2Email, &step2At,
		&note, &paymentRef, &cancelReason, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt, &c.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Case{}, ErrCaseNotFound
		}
		return Case{}, err
	}
	if len(lineItems) > 0 {
		if err := json.Unmarshal(lineItems, &c.LineItems); err != nil {
			return Case{}, fmt.Errorf("fincase: decode line items: %w", err)
		}
	}
	if step1By != nil {
		step := &ApprovalStep{By: *step1By, At: *step1At}
		if step1Email != nil {
			step.Email = *step1Email
		}
		if step1Amount != nil {
			amount, err := decimal.NewFromString(*step1Amount)
			if err != nil {
				return Case{}, fmt.Errorf("fincase: parse approval amount: %w", err)
			}
			step.Amount = amount
		}
		c.Approval.Step1 = step
	}
	if step2By != nil {
		step := &ApprovalStep{By: *step2By, At: *step2At}
		if step2Email != nil {
			step.Email = *step2Email
		}
		c.Approval.Step2 = step
	}
	if note != nil {
		c.Note = *note
	}
	if paymentRef != nil {
		c.PaymentReference = *paymentRef
	}
	if cancelReason != nil {
		c.CancelReason = *cancelReason
	}
	return c, nil
}

// GetCase loads a case scoped to the organization.
func (r *PgRepository) GetCase(ctx context.Context, orgID, id uuid.UUID) (Case, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+caseColumns+` FROM finance_cases WHERE organization_id=$1 AND id=$2`, orgID, id)
	return scanCase(row)
}

// LockedRecords returns the records currently reserved by the case.
func (r *PgRepository) LockedRecords(ctx context.Context, orgID, caseID uuid.UUID) ([]ledger.Record, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	records, err := r.records.ListLockedTx(ctx, tx, orgID, caseID)
	if err != nil {
		return nil, err
	}
	return records, tx.Commit(ctx)
}

// ListCases returns cases of one kind, newest first.
func (r *PgRepository) ListCases(ctx context.Context, orgID uuid.UUID, kind Kind, limit, offset int) ([]Case, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+caseColumns+` FROM finance_cases
WHERE organization_id=$1 AND kind=$2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`, orgID, kind, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCases(rows)
}

// ListStaleDrafts returns draft cases across organizations idle since before
// the cutoff, used by the sweep job.
func (r *PgRepository) ListStaleDrafts(ctx context.Context, cutoff time.Time, limit int) ([]Case, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+caseColumns+` FROM finance_cases
WHERE status=$1 AND updated_at < $2 ORDER BY updated_at ASC LIMIT $3`, StatusDraft, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCases(rows)
}

func collectCases(rows pgx.Rows) ([]Case, error) {
	var out []Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type pgTx struct {
	tx      pgx.Tx
	records *ledger.Repository
}

func (t *pgTx) InsertCase(ctx context.Context, c Case) error {
	items, err := json.Marshal(c.LineItems)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO finance_cases
(id, organization_id, kind, status, currency, scope_ref, period, booking_ref, line_items, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.OrganizationID, c.Kind, c.Status, c.Currency, c.ScopeRef, c.Period, c.BookingRef, items, c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		// The partial unique index on open cases caught a concurrent create
		// that slipped past the in-tx existence check.
		return NewConflict(CodeOpenCaseExists, "an open case already exists for this scope, period and currency", nil)
	}
	return err
}

func (t *pgTx) GetCaseForUpdate(ctx context.Context, orgID, id uuid.UUID) (Case, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+caseColumns+` FROM finance_cases WHERE organization_id=$1 AND id=$2 FOR UPDATE`, orgID, id)
	return scanCase(row)
}

func (t *pgTx) HasOpenCase(ctx context.Context, orgID uuid.UUID, kind Kind, scopeRef, period, curr string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM finance_cases
WHERE organization_id=$1 AND kind=$2 AND scope_ref=$3 AND period=$4 AND currency=$5 AND status = ANY($6))`,
		orgID, kind, scopeRef, period, curr, openStatuses).Scan(&exists)
	return exists, err
}

func (t *pgTx) UpdateCase(ctx context.Context, orgID, id uuid.UUID, fromStatus Status, patch CasePatch) (bool, error) {
	var items []byte
	if patch.Freeze {
		encoded, err := json.Marshal(patch.LineItems)
		if err != nil {
			return false, err
		}
		items = encoded
	}
	var step1By, step2By *uuid.UUID
	var step1Email, step2Email, step1Amount *string
	var step1At, step2At *time.Time
	if patch.Step1 != nil {
		step1By = &patch.Step1.By
		step1Email = &patch.Step1.Email
		step1At = &patch.Step1.At
		amount := patch.Step1.Amount.String()
		step1Amount = &amount
	}
	if patch.Step2 != nil {
		step2By = &patch.Step2.By
		step2Email = &patch.Step2.Email
		step2At = &patch.Step2.At
	}
	tag, err := t.tx.Exec(ctx, `UPDATE finance_cases SET
status=$1,
line_items=CASE WHEN $2 THEN $3::jsonb ELSE line_items END,
step1_by=COALESCE($4, step1_by), step1_email=COALESCE($5, step1_email), step1_at=COALESCE($6, step1_at), step1_amount=COALESCE($7, step1_amount),
step2_by=COALESCE($8, step2_by), step2_email=COALESCE($9, step2_email), step2_at=COALESCE($10, step2_at),
note=COALESCE($11, note),
payment_reference=COALESCE($12, payment_reference),
cancel_reason=COALESCE($13, cancel_reason),
closed_at=COALESCE($14, closed_at),
updated_at=$15
WHERE organization_id=$16 AND id=$17 AND status=$18`,
		patch.Status, patch.Freeze, items,
		step1By, step1Email, step1At, step1Amount,
		step2By, step2Email, step2At,
		patch.Note, patch.PaymentReference, patch.CancelReason, patch.ClosedAt, patch.UpdatedAt,
		orgID, id, fromStatus)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgTx) ReserveRecord(ctx context.Context, orgID, caseID, recordID uuid.UUID, kind ledger.Kind, ownerRef, curr string) (bool, error) {
	return t.records.ReserveScopedTx(ctx, t.tx, orgID, caseID, recordID, kind, ownerRef, curr)
}

func (t *pgTx) RecordState(ctx context.Context, orgID, recordID uuid.UUID) (ledger.Status, *uuid.UUID, error) {
	return t.records.StatusTx(ctx, t.tx, orgID, recordID)
}

func (t *pgTx) ReleaseRecords(ctx context.Context, orgID, caseID uuid.UUID, ids []uuid.UUID) (int, error) {
	return t.records.ReleaseTx(ctx, t.tx, orgID, caseID, ids)
}

func (t *pgTx) ReleaseAllRecords(ctx context.Context, orgID, caseID uuid.UUID) (int, error) {
	return t.records.ReleaseAllTx(ctx, t.tx, orgID, caseID)
}

func (t *pgTx) SettleAllRecords(ctx context.Context, orgID, caseID uuid.UUID) (int, error) {
	return t.records.SettleAllTx(ctx, t.tx, orgID, caseID)
}

func (t *pgTx) LockedRecords(ctx context.Context, orgID, caseID uuid.UUID) ([]ledger.Record, error) {
	return t.records.ListLockedTx(ctx, t.tx, orgID, caseID)
}
