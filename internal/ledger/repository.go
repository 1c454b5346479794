package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrRecordNotFound indicates the requested ledger record does not exist in
// the organization scope.
var ErrRecordNotFound = errors.New("ledger record not found")

// Repository persists ledger records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `id, organization_id, kind, owner_ref, currency, amount, status, case_id, created_at, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var amount string
	if err := row.Scan(&rec.ID, &rec.OrganizationID, &rec.Kind, &rec.OwnerRef, &rec.Currency, &amount, &rec.Status, &rec.CaseID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Record{}, fmt.Errorf("ledger: parse amount: %w", err)
	}
	rec.Amount = parsed
	return rec, nil
}

// CreateRecord inserts a new free record.
func (r *Repository) CreateRecord(ctx context.Context, rec Record) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO ledger_records (`+recordColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8, $8)`,
		rec.ID, rec.OrganizationID, rec.Kind, rec.OwnerRef, rec.Currency, rec.Amount.String(), rec.Status, rec.CreatedAt)
	return err
}

// GetRecord loads a record scoped to the organization.
func (r *Repository) GetRecord(ctx context.Context, orgID, id uuid.UUID) (Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM ledger_records WHERE organization_id=$1 AND id=$2`, orgID, id)
	return scanRecord(row)
}

// ListEligible returns free records of a kind matching the scope filter.
func (r *Repository) ListEligible(ctx context.Context, orgID uuid.UUID, kind Kind, ownerRef, curr string) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM ledger_records
WHERE organization_id=$1 AND kind=$2 AND owner_ref=$3 AND currency=$4 AND status=$5 AND case_id IS NULL
ORDER BY created_at ASC`, orgID, kind, ownerRef, curr, FreeStatus(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// --- Transaction-scoped reservation primitives ---
//
// Reservation is a single conditional update per record: the free-status and
// case_id checks happen in the same statement as the set, so two concurrent
// reservations of one record can never both succeed.

// ReserveScopedTx attempts to reserve one record for a case. It returns
// false when the record is not eligible: wrong status, wrong kind, already
// locked, outside the organization, or not matching the case's owner scope
// and currency. The eligibility checks and the set happen in one statement.
func (r *Repository) ReserveScopedTx(ctx context.Context, tx pgx.Tx, orgID, caseID, recordID uuid.UUID, kind Kind, ownerRef, curr string) (bool, error) {
	tag, err := tx.Exec(ctx, `UPDATE ledger_records
SET status=$1, case_id=$2, updated_at=$3
WHERE id=$4 AND organization_id=$5 AND kind=$6 AND owner_ref=$7 AND currency=$8 AND status=$9 AND case_id IS NULL`,
		StatusInCase, caseID, time.Now(), recordID, orgID, kind, ownerRef, curr, FreeStatus(kind))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseTx returns records held by the case to their free status. Records
// not held by the case are skipped, making release idempotent.
func (r *Repository) ReleaseTx(ctx context.Context, tx pgx.Tx, orgID, caseID uuid.UUID, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := tx.Exec(ctx, `UPDATE ledger_records
SET status=CASE kind WHEN $1 THEN $2 ELSE $3 END, case_id=NULL, updated_at=$4
WHERE organization_id=$5 AND case_id=$6 AND id = ANY($7)`,
		string(KindRefundRequest), StatusRequested, StatusAccrued, time.Now(), orgID, caseID, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ReleaseAllTx releases every record still held by the case.
func (r *Repository) ReleaseAllTx(ctx context.Context, tx pgx.Tx, orgID, caseID uuid.UUID) (int, error) {
	tag, err := tx.Exec(ctx, `UPDATE ledger_records
SET status=CASE kind WHEN $1 THEN $2 ELSE $3 END, case_id=NULL, updated_at=$4
WHERE organization_id=$5 AND case_id=$6`,
		string(KindRefundRequest), StatusRequested, StatusAccrued, time.Now(), orgID, caseID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// SettleAllTx moves every record held by the case to its terminal status.
// The case linkage is kept for traceability.
func (r *Repository) SettleAllTx(ctx context.Context, tx pgx.Tx, orgID, caseID uuid.UUID) (int, error) {
	tag, err := tx.Exec(ctx, `UPDATE ledger_records
SET status=CASE kind WHEN $1 THEN $2 ELSE $3 END, updated_at=$4
WHERE organization_id=$5 AND case_id=$6 AND status=$7`,
		string(KindRefundRequest), StatusPaid, StatusSettled, time.Now(), orgID, caseID, StatusInCase)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ListLockedTx returns the records currently held by the case, ordered for a
// stable snapshot.
func (r *Repository) ListLockedTx(ctx context.Context, tx pgx.Tx, orgID, caseID uuid.UUID) ([]Record, error) {
	rows, err := tx.Query(ctx, `SELECT `+recordColumns+` FROM ledger_records
WHERE organization_id=$1 AND case_id=$2 ORDER BY created_at ASC, id ASC`, orgID, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// StatusTx loads status and case linkage for one record inside the
// transaction, used to build conflict details after a failed reservation.
func (r *Repository) StatusTx(ctx context.Context, tx pgx.Tx, orgID, recordID uuid.UUID) (Status, *uuid.UUID, error) {
	var status Status
	var caseID *uuid.UUID
	err := tx.QueryRow(ctx, `SELECT status, case_id FROM ledger_records WHERE organization_id=$1 AND id=$2`, orgID, recordID).Scan(&status, &caseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, ErrRecordNotFound
		}
		return "", nil, err
	}
	return status, caseID, nil
}
