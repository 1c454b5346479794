package fincase

import (
	"context"

	"github.com/google/uuid"
)

// LockManager reserves and releases ledger records on behalf of a case.
// "Locking" is a persisted status flag plus case linkage on the record, not
// an in-memory mutex: it survives restarts and is visible to every instance.
// The manager emits no audit entries; the engine audits once per case-level
// operation.
type LockManager struct{}

// NewLockManager constructs a LockManager.
func NewLockManager() *LockManager {
	return &LockManager{}
}

// Reserve locks every record for the case, or fails the whole batch. Each
// record is taken with a single conditional update (free status and absent
// case linkage checked and set together); the first ineligible record aborts
// with a record_not_eligible conflict carrying its id and current state, and
// the surrounding transaction rollback undoes any reservations already made.
func (m *LockManager) Reserve(ctx context.Context, tx TxRepository, c Case, recordIDs []uuid.UUID) (int, error) {
	kind := recordKind(c.Kind)
	for _, recordID := range recordIDs {
		ok, err := tx.ReserveRecord(ctx, c.OrganizationID, c.ID, recordID, kind, c.ScopeRef, c.Currency)
		if err != nil {
			return 0, err
		}
		if ok {
			continue
		}
		details := map[string]any{"record_id": recordID.String()}
		status, heldBy, err := tx.RecordState(ctx, c.OrganizationID, recordID)
		if err == nil {
			details["record_status"] = string(status)
			if heldBy != nil {
				details["case_id"] = heldBy.String()
			}
		}
		return 0, NewConflict(CodeRecordNotEligible, "record is not eligible for reservation", details)
	}
	return len(recordIDs), nil
}

// Release returns the given records to the free pool. Records the case does
// not hold are skipped, so releasing an already-free record is a no-op.
func (m *LockManager) Release(ctx context.Context, tx TxRepository, c Case, recordIDs []uuid.UUID) (int, error) {
	return tx.ReleaseRecords(ctx, c.OrganizationID, c.ID, recordIDs)
}

// ReleaseAll frees every record still held by the case. Used by cancel:
// an approved case still owns live locks even though its line items are
// frozen, and those locks must be returned, not just forgotten.
func (m *LockManager) ReleaseAll(ctx context.Context, tx TxRepository, c Case) (int, error) {
	return tx.ReleaseAllRecords(ctx, c.OrganizationID, c.ID)
}
