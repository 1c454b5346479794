package fincase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-travel/meridian/internal/ledger"
)

// CasePatch carries the fields a transition may change. Nil pointers leave
// the stored value untouched; Status is always set and applied through a
// compare-and-swap on the expected current status.
type CasePatch struct {
	Status           Status
	LineItems        []LineItem
	Freeze           bool
	Step1            *ApprovalStep
	Step2            *ApprovalStep
	Note             *string
	PaymentReference *string
	CancelReason     *string
	ClosedAt         *time.Time
	UpdatedAt        time.Time
}

// TxRepository exposes the transaction-scoped persistence surface. Lock
// mutations and the status compare-and-swap share one transaction so a
// transition can never commit with stale locks.
type TxRepository interface {
	InsertCase(ctx context.Context, c Case) error
	GetCaseForUpdate(ctx context.Context, orgID, id uuid.UUID) (Case, error)
	HasOpenCase(ctx context.Context, orgID uuid.UUID, kind Kind, scopeRef, period, curr string) (bool, error)
	// UpdateCase applies the patch only when the stored status still equals
	// from; it reports false when the guard fails.
	UpdateCase(ctx context.Context, orgID, id uuid.UUID, fromStatus Status, patch CasePatch) (bool, error)

	ReserveRecord(ctx context.Context, orgID, caseID, recordID uuid.UUID, kind ledger.Kind, ownerRef, curr string) (bool, error)
	RecordState(ctx context.Context, orgID, recordID uuid.UUID) (ledger.Status, *uuid.UUID, error)
	ReleaseRecords(ctx context.Context, orgID, caseID uuid.UUID, ids []uuid.UUID) (int, error)
	ReleaseAllRecords(ctx context.Context, orgID, caseID uuid.UUID) (int, error)
	SettleAllRecords(ctx context.Context, orgID, caseID uuid.UUID) (int, error)
	LockedRecords(ctx context.Context, orgID, caseID uuid.UUID) ([]ledger.Record, error)
}

// Repository is the case persistence contract. The pgx implementation lives
// in repository_pg.go; tests provide an in-memory one.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetCase(ctx context.Context, orgID, id uuid.UUID) (Case, error)
	LockedRecords(ctx context.Context, orgID, caseID uuid.UUID) ([]ledger.Record, error)
	ListCases(ctx context.Context, orgID uuid.UUID, kind Kind, limit, offset int) ([]Case, error)
	ListStaleDrafts(ctx context.Context, cutoff time.Time, limit int) ([]Case, error)
}

// recordKind maps the case kind to the ledger record kind it reserves.
func recordKind(kind Kind) ledger.Kind {
	if kind == KindRefund {
		return ledger.KindRefundRequest
	}
	return ledger.KindAccrual
}

// snapshotFrom copies the currently locked records into an immutable line
// item snapshot. The copy is by value; later record mutations cannot reach
// the frozen amounts.
func snapshotFrom(records []ledger.Record) []LineItem {
	items := make([]LineItem, 0, len(records))
	for _, rec := range records {
		items = append(items, LineItem{RecordID: rec.ID, Amount: rec.Amount.Copy()})
	}
	return items
}

func liveTotals(records []ledger.Record) Totals {
	total := decimal.Zero
	for _, rec := range records {
		total = total.Add(rec.Amount)
	}
	return Totals{Count: len(records), TotalAmount: total}
}
