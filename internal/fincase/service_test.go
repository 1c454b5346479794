package fincase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-travel/meridian/internal/ledger"
	"github.com/meridian-travel/meridian/internal/shared"
)

type memoryCaseRepo struct {
	cases   map[uuid.UUID]Case
	records map[uuid.UUID]ledger.Record
	order   []uuid.UUID
}

func newMemoryCaseRepo() *memoryCaseRepo {
	return &memoryCaseRepo{
		cases:   make(map[uuid.UUID]Case),
		records: make(map[uuid.UUID]ledger.Record),
	}
}

func (r *memoryCaseRepo) addRecord(rec ledger.Record) {
	r.records[rec.ID] = rec
	r.order = append(r.order, rec.ID)
}

func (r *memoryCaseRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryCaseTx{repo: r})
}

func (r *memoryCaseRepo) GetCase(ctx context.Context, orgID, id uuid.UUID) (Case, error) {
	c, ok := r.cases[id]
	if !ok || c.OrganizationID != orgID {
		return Case{}, ErrCaseNotFound
	}
	return c, nil
}

func (r *memoryCaseRepo) LockedRecords(ctx context.Context, orgID, caseID uuid.UUID) ([]ledger.Record, error) {
	var out []ledger.Record
	for _, id := range r.order {
		rec := r.records[id]
		if rec.OrganizationID == orgID && rec.CaseID != nil && *rec.CaseID == caseID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryCaseRepo) ListCases(ctx context.Context, orgID uuid.UUID, kind Kind, limit, offset int) ([]Case, error) {
	var out []Case
	for _, c := range r.cases {
		if c.OrganizationID == orgID && c.Kind == kind {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memoryCaseRepo) ListStaleDrafts(ctx context.Context, cutoff time.Time, limit int) ([]Case, error) {
	var out []Case
	for _, c := range r.cases {
		if c.Status == StatusDraft && c.UpdatedAt.Before(cutoff) {
			out = append(out, c)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type memoryCaseTx struct {
	repo *memoryCaseRepo
}

func (t *memoryCaseTx) InsertCase(ctx context.Context, c Case) error {
	t.repo.cases[c.ID] = c
	return nil
}

func (t *memoryCaseTx) GetCaseForUpdate(ctx context.Context, orgID, id uuid.UUID) (Case, error) {
	return t.repo.GetCase(ctx, orgID, id)
}

func (t *memoryCaseTx) HasOpenCase(ctx context.Context, orgID uuid.UUID, kind Kind, scopeRef, period, curr string) (bool, error) {
	for _, c := range t.repo.cases {
		if c.OrganizationID == orgID && c.Kind == kind && c.ScopeRef == scopeRef && c.Period == period && c.Currency == curr && c.Status.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryCaseTx) UpdateCase(ctx context.Context, orgID, id uuid.UUID, fromStatus Status, patch CasePatch) (bool, error) {
	c, ok := t.repo.cases[id]
	if !ok || c.OrganizationID != orgID || c.Status != fromStatus {
		return false, nil
	}
	t.repo.cases[id] = applyPatch(c, patch)
	return true, nil
}

func (t *memoryCaseTx) ReserveRecord(ctx context.Context, orgID, caseID, recordID uuid.UUID, kind ledger.Kind, ownerRef, curr string) (bool, error) {
	rec, ok := t.repo.records[recordID]
	if !ok || rec.OrganizationID != orgID || rec.Kind != kind || rec.OwnerRef != ownerRef || rec.Currency != curr {
		return false, nil
	}
	if rec.Status != ledger.FreeStatus(rec.Kind) || rec.CaseID != nil {
		return false, nil
	}
	rec.Status = ledger.StatusInCase
	rec.CaseID = &caseID
	t.repo.records[recordID] = rec
	return true, nil
}

func (t *memoryCaseTx) RecordState(ctx context.Context, orgID, recordID uuid.UUID) (ledger.Status, *uuid.UUID, error) {
	rec, ok := t.repo.records[recordID]
	if !ok || rec.OrganizationID != orgID {
		return "", nil, ledger.ErrRecordNotFound
	}
	return rec.Status, rec.CaseID, nil
}

func (t *memoryCaseTx) ReleaseRecords(ctx context.Context, orgID, caseID uuid.UUID, ids []uuid.UUID) (int, error) {
	released := 0
	for _, id := range ids {
		rec, ok := t.repo.records[id]
		if !ok || rec.OrganizationID != orgID || rec.CaseID == nil || *rec.CaseID != caseID {
			continue
		}
		rec.Status = ledger.FreeStatus(rec.Kind)
		rec.CaseID = nil
		t.repo.records[id] = rec
		released++
	}
	return released, nil
}

func (t *memoryCaseTx) ReleaseAllRecords(ctx context.Context, orgID, caseID uuid.UUID) (int, error) {
	released := 0
	for id, rec := range t.repo.records {
		if rec.OrganizationID != orgID || rec.CaseID == nil || *rec.CaseID != caseID {
			continue
		}
		rec.Status = ledger.FreeStatus(rec.Kind)
		rec.CaseID = nil
		t.repo.records[id] = rec
		released++
	}
	return released, nil
}

func (t *memoryCaseTx) SettleAllRecords(ctx context.Context, orgID, caseID uuid.UUID) (int, error) {
	settled := 0
	for id, rec := range t.repo.records {
		if rec.OrganizationID != orgID || rec.CaseID == nil || *rec.CaseID != caseID || rec.Status != ledger.StatusInCase {
			continue
		}
		rec.Status = ledger.TerminalStatus(rec.Kind)
		t.repo.records[id] = rec
		settled++
	}
	return settled, nil
}

func (t *memoryCaseTx) LockedRecords(ctx context.Context, orgID, caseID uuid.UUID) ([]ledger.Record, error) {
	return t.repo.LockedRecords(ctx, orgID, caseID)
}

type recordingEmitter struct {
	events []Event
}

func (e *recordingEmitter) Emit(ctx context.Context, ev Event) error {
	e.events = append(e.events, ev)
	return nil
}

func (e *recordingEmitter) byAction(action string) []Event {
	var out []Event
	for _, ev := range e.events {
		if ev.Action == action {
			out = append(out, ev)
		}
	}
	return out
}

var (
	testOrg    = uuid.New()
	alice      = shared.Actor{ID: uuid.New(), Email: "alice@meridian.test"}
	bob        = shared.Actor{ID: uuid.New(), Email: "bob@meridian.test"}
	testAmount = decimal.NewFromInt(500)
)

func newTestEngine(t *testing.T) (*Service, *memoryCaseRepo, *recordingEmitter) {
	t.Helper()
	repo := newMemoryCaseRepo()
	emitter := &recordingEmitter{}
	svc := NewService(repo, NewLockManager(), emitter, nil, nil)
	return svc, repo, emitter
}

func accrual(repo *memoryCaseRepo, supplier string, amount decimal.Decimal) ledger.Record {
	rec := ledger.Record{
		ID:             uuid.New(),
		OrganizationID: testOrg,
		Kind:           ledger.KindAccrual,
		OwnerRef:       supplier,
		Currency:       "EUR",
		Amount:         amount,
		Status:         ledger.StatusAccrued,
		CreatedAt:      time.Now(),
	}
	repo.addRecord(rec)
	return rec
}

func refundRequest(repo *memoryCaseRepo, bookingRef string, amount decimal.Decimal) ledger.Record {
	rec := ledger.Record{
		ID:             uuid.New(),
		OrganizationID: testOrg,
		Kind:           ledger.KindRefundRequest,
		OwnerRef:       bookingRef,
		Currency:       "EUR",
		Amount:         amount,
		Status:         ledger.StatusRequested,
		CreatedAt:      time.Now(),
	}
	repo.addRecord(rec)
	return rec
}

func createSettlement(t *testing.T, svc *Service, supplier string) Case {
	t.Helper()
	c, err := svc.Create(context.Background(), testOrg, alice, CreateCaseInput{
		Kind:       KindSettlement,
		SupplierID: supplier,
		Period:     "2026-08",
		Currency:   "EUR",
	})
	require.NoError(t, err)
	return c
}

func createRefundCase(t *testing.T, svc *Service, bookingRef string) Case {
	t.Helper()
	c, err := svc.Create(context.Background(), testOrg, alice, CreateCaseInput{
		Kind:       KindRefund,
		BookingRef: bookingRef,
		Currency:   "EUR",
	})
	require.NoError(t, err)
	return c
}

func TestCreateEnforcesOneOpenCase(t *testing.T) {
	svc, _, _ := newTestEngine(t)
	createSettlement(t, svc, "SUP-1")

	_, err := svc.Create(context.Background(), testOrg, alice, CreateCaseInput{
		Kind:       KindSettlement,
		SupplierID: "SUP-1",
		Period:     "2026-08",
		Currency:   "EUR",
	})
	conflict, ok := AsConflict(err)
	require.True(t, ok)
	require.Equal(t, CodeOpenCaseExists, conflict.Code)

	// A different currency is a different tuple.
	_, err = svc.Create(context.Background(), testOrg, alice, CreateCaseInput{
		Kind:       KindSettlement,
		SupplierID: "SUP-1",
		Period:     "2026-08",
		Currency:   "USD",
	})
	require.NoError(t, err)
}

func TestCancelFreesUniquenessTuple(t *testing.T) {
	svc, _, _ := newTestEngine(t)
	c := createSettlement(t, svc, "SUP-1")

	_, err := svc.Cancel(context.Background(), testOrg, alice, c.ID, "wrong period")
	require.NoError(t, err)

	createSettlement(t, svc, "SUP-1")
}

func TestLockExclusivity(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	rec := accrual(repo, "SUP-1", testAmount)

	first := createSettlement(t, svc, "SUP-1")
	_, _, err := svc.AddItems(context.Background(), testOrg, alice, first.ID, []uuid.UUID{rec.ID})
	require.NoError(t, err)

	second, err := svc.Create(context.Background(), testOrg, alice, CreateCaseInput{
		Kind:       KindSettlement,
		SupplierID: "SUP-1",
		Period:     "2026-09",
		Currency:   "EUR",
	})
	require.NoError(t, err)

	_, _, err = svc.AddItems(context.Background(), testOrg, alice, second.ID, []uuid.UUID{rec.ID})
	conflict, ok := AsConflict(err)
	require.True(t, ok)
	require.Equal(t, CodeRecordNotEligible, conflict.Code)
	require.Equal(t, rec.ID.String(), conflict.Details["record_id"])
	require.Equal(t, first.ID.String(), conflict.Details["case_id"])
}

func TestAddRemoveRoundTrip(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	rec := accrual(repo, "SUP-1", testAmount)
	c := createSettlement(t, svc, "SUP-1")

	_, result, err := svc.AddItems(context.Background(), testOrg, alice, c.ID, []uuid.UUID{rec.ID})
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)
	require.True(t, result.Totals.TotalAmount.Equal(testAmount))

	_, result, err = svc.RemoveItems(context.Background(), testOrg, alice, c.ID, []uuid.UUID{rec.ID})
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)
	require.Equal(t, 0, result.Totals.Count)

	stored := repo.records[rec.ID]
	require.Equal(t, ledger.StatusAccrued, stored.Status)
	require.Nil(t, stored.CaseID)

	// Removing an already-free record is a no-op.
	_, result, err = svc.RemoveItems(context.Background(), testOrg, alice, c.ID, []uuid.UUID{rec.ID})
	require.NoError(t, err)
	require.Equal(t, 0, result.Count)
}

func TestAddItemsRejectsWrongScope(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	rec := accrual(repo, "SUP-2", testAmount)
	c := createSettlement(t, svc, "SUP-1")

	_, _, err := svc.AddItems(context.Background(), testOrg, alice, c.ID, []uuid.UUID{rec.ID})
	conflict, ok := AsConflict(err)
	require.True(t, ok)
	require.Equal(t, CodeRecordNotEligible, conflict.Code)
}

func TestSettlementApproveFlow(t *testing.T) {
	svc, repo, emitter := newTestEngine(t)
	rec := accrual(repo, "SUP-1", testAmount)
	c := createSettlement(t, svc, "SUP-1")

	_, _, err := svc.AddItems(context.Background(), testOrg, alice, c.ID, []uuid.UUID{rec.ID})
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), testOrg, alice, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Len(t, approved.LineItems, 1)
	require.True(t, ComputeTotals(approved.LineItems).TotalAmount.Equal(testAmount))
	require.NotNil(t, approved.Approval.Step1)
	require.Equal(t, alice.ID, approved.Approval.Step1.By)

	events := emitter.byAction("settlement_approve")
	require.Len(t, events, 1)
	require.NotNil(t, events[0].ApprovedAmount)
	require.True(t, events[0].ApprovedAmount.Equal(testAmount))

	// Item mutations are rejected once the case left draft.
	_, _, err = svc.AddItems(context.Background(), testOrg, alice, c.ID, []uuid.UUID{rec.ID})
	conflict, ok := AsConflict(err)
	require.True(t, ok)
	require.Equal(t, CodeCaseNotDraft, conflict.Code)
}

func TestApproveEmptyCase(t *testing.T) {
	svc, _, _ := newTestEngine(t)
	c := createSettlement(t, svc, "SUP-1")

	_, err := svc.Approve(context.Background(), testOrg, alice, c.ID)
	conflict, ok := AsConflict(err)
	require.True(t, ok)
	require.Equal(t, CodeCaseEmpty, conflict.Code)
}

func TestFreezeImmutability(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	rec := accrual(repo, "SUP-1", testAmount)
	c := createSettlement(t, svc, "SUP-1")

	_, _, err := svc.AddItems(context.Background(), testOrg, alice, c.ID, []uuid.UUID{rec.ID})
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), testOrg, alice, c.ID)
	require.NoError(t, err)

	// Mutating the underlying record must not reach the frozen snapshot.
	mutated := repo.records[rec.ID]
	mutated.Amount = decimal.NewFromInt(9999)
	repo.records[rec.ID] = mutated

	stored, err := repo.GetCase(context.Background(), testOrg, c.ID)
	require.NoError(t, err)
	require.True(t, ComputeTotals(stored.LineItems).TotalAmount.Equal(testAmount))

	view := BuildView(stored, nil)
	require.True(t, view.Totals.TotalAmount.Equal(testAmount))
}

func TestMarkPaidGuards(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	rec := accrual(repo, "SUP-1", testAmount)
	c := createSettlement(t, svc, "SUP-1")

	_, err := svc.MarkPaid(context.Background(), testOrg, alice, c.ID, "PAY-1")
	conflict, ok := AsConflict(err)
	require.True(t, ok)
	require.Equal(t, CodeInvalidCaseState, conflict.Code)

	_, _, err = svc.AddItems(context.Background(), testOrg, alice, c.ID, []uuid.UUID{rec.ID})
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), testOrg, alice, c.ID)
	require.NoError(t, err)

	paid, err := svc.MarkPaid(context.Background(), testOrg, alice, c.ID, "PAY-1")
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.Equal(t, "PAY-1", paid.PaymentReference)

	// The held accrual reaches its terminal status with the case.
	stored := repo.records[rec.ID]
	require.Equal(t, ledger.StatusSettled, stored.Status)
	require.NotNil(t, stored.CaseID)
}

func TestCancelReleasesLocks(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	rec := accrual(repo, "SUP-1", testAmount)
	c := createSettlement(t, svc, "SUP-1")

	_, _, err := svc.AddItems(context.Background(), testOrg, alice, c.ID, []uuid.UUID{rec.ID})
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), testOrg, alice, c.ID)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), testOrg, alice, c.ID, "supplier dispute")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, "supplier dispute", cancelled.CancelReason)

	stored := repo.records[rec.ID]
	require.Equal(t, ledger.StatusAccrued, stored.Status)
	require.Nil(t, stored.CaseID)
}

func TestCancelPaidCase(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	rec := accrual(repo, "SUP-1", testAmount)
	c := createSettlement(t, svc, "SUP-1")

	_, _, err := svc.AddItems(context.Background(), testOrg, alice, c.ID, []uuid.UUID{rec.ID})
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), testOrg, alice, c.ID)
	require.NoError(t, err)
	_, err = svc.MarkPaid(context.Background(), testOrg, alice, c.ID, "PAY-1")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), testOrg, alice, c.ID, "too late")
	conflict, ok := AsConflict(err)
	require.True(t, ok)
	require.Equal(t, CodeCaseAlreadyFinalized, conflict.Code)
}

func TestFourEyes(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	rec := refundRequest(repo, "BK-1", testAmount)
	c := createRefundCase(t, svc, "BK-1")

	_, _, err := svc.AddItems(context.Background(), testOrg, alice, c.ID, []uuid.UUID{rec.ID})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), testOrg, alice, c.ID, "")
	require.NoError(t, err)
	_, err = svc.ApproveStep1(context.Background(), testOrg, alice, c.ID, decimal.Zero)
	require.NoError(t, err)

	_, err = svc.ApproveStep2(context.Background(), testOrg, alice, c.ID, "")
	conflict, ok := AsConflict(err)
	require.True(t, ok)
	require.Equal(t, CodeFourEyesViolation, conflict.Code)

	approved, err := svc.ApproveStep2(context.Background(), testOrg, bob, c.ID, "checked against booking")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, bob.ID, approved.Approval.Step2.By)
}

func TestApproveStep1FromDraftFreezes(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	rec := refundRequest(repo, "BK-1", testAmount)
	c := createRefundCase(t, svc, "BK-1")

	_, _, err := svc.AddItems(context.Background(), testOrg, alice, c.ID, []uuid.UUID{rec.ID})
	require.NoError(t, err)

	// Step1 straight from draft skips submit and freezes the snapshot.
	stepped, err := svc.ApproveStep1(context.Background(), testOrg, alice, c.ID, decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval2, stepped.Status)
	require.Len(t, stepped.LineItems, 1)
	require.True(t, stepped.Approval.Step1.Amount.Equal(testAmount))
}

func TestApproveStep1PartialAmount(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	rec := refundRequest(repo, "BK-1", testAmount)
	c := createRefundCase(t, svc, "BK-1")

	_, _, err := svc.AddItems(context.Background(), testOrg, alice, c.ID, []uuid.UUID{rec.ID})
	require.NoError(t, err)

	partial := decimal.NewFromInt(300)
	stepped, err := svc.ApproveStep1(context.Background(), testOrg, alice, c.ID, partial)
	require.NoError(t, err)
	require.True(t, stepped.Approval.Step1.Amount.Equal(partial))
}

func TestRejectRecordsReasonAndAuditsOnce(t *testing.T) {
	svc, repo, emitter := newTestEngine(t)
	rec := refundRequest(repo, "BK-1", testAmount)
	c := createRefundCase(t, svc, "BK-1")

	_, _, err := svc.AddItems(context.Background(), testOrg, alice, c.ID, []uuid.UUID{rec.ID})
	require.NoError(t, err)

	rejected, err := svc.Reject(context.Background(), testOrg, alice, c.ID, "duplicate")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, "duplicate", rejected.CancelReason)

	events := emitter.byAction("refund_reject")
	require.Len(t, events, 1)
	require.Equal(t, "duplicate", events[0].Reason)
	require.Equal(t, "BK-1", events[0].BookingRef)
	require.Equal(t, alice.Email, events[0].ActorEmail)

	// A second reject must not double-emit or change state again.
	_, err = svc.Reject(context.Background(), testOrg, alice, c.ID, "duplicate")
	conflict, ok := AsConflict(err)
	require.True(t, ok)
	require.Equal(t, CodeInvalidCaseState, conflict.Code)
	require.Len(t, emitter.byAction("refund_reject"), 1)
}

func TestRejectEmptyDraft(t *testing.T) {
	svc, _, emitter := newTestEngine(t)
	c := createRefundCase(t, svc, "BK-1")

	// A duplicate claim is rejected before any records are attached.
	rejected, err := svc.Reject(context.Background(), testOrg, alice, c.ID, "duplicate")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, "duplicate", rejected.CancelReason)
	require.Empty(t, rejected.LineItems)
	require.Len(t, emitter.byAction("refund_reject"), 1)
}

func TestApproveStep1AmountBounds(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	rec := refundRequest(repo, "BK-1", testAmount)
	c := createRefundCase(t, svc, "BK-1")

	_, _, err := svc.AddItems(context.Background(), testOrg, alice, c.ID, []uuid.UUID{rec.ID})
	require.NoError(t, err)

	_, err = svc.ApproveStep1(context.Background(), testOrg, alice, c.ID, decimal.NewFromInt(-1))
	conflict, ok := AsConflict(err)
	require.True(t, ok)
	require.Equal(t, CodeInvalidAmount, conflict.Code)

	_, err = svc.ApproveStep1(context.Background(), testOrg, alice, c.ID, testAmount.Add(decimal.NewFromInt(1)))
	conflict, ok = AsConflict(err)
	require.True(t, ok)
	require.Equal(t, CodeInvalidAmount, conflict.Code)

	// A rejected amount must not advance the case.
	stored, err := repo.GetCase(context.Background(), testOrg, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, stored.Status)
}

func TestRejectedCaseCanClose(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	rec := refundRequest(repo, "BK-1", testAmount)
	c := createRefundCase(t, svc, "BK-1")

	_, _, err := svc.AddItems(context.Background(), testOrg, alice, c.ID, []uuid.UUID{rec.ID})
	require.NoError(t, err)
	_, err = svc.Reject(context.Background(), testOrg, alice, c.ID, "duplicate")
	require.NoError(t, err)

	closed, err := svc.Close(context.Background(), testOrg, alice, c.ID, "resolved with customer")
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
}

func TestOrganizationScoping(t *testing.T) {
	svc, _, _ := newTestEngine(t)
	c := createSettlement(t, svc, "SUP-1")

	otherOrg := uuid.New()
	_, err := svc.Approve(context.Background(), otherOrg, alice, c.ID)
	require.ErrorIs(t, err, ErrCaseNotFound)
}

func TestSweepStaleDrafts(t *testing.T) {
	svc, repo, emitter := newTestEngine(t)
	rec := accrual(repo, "SUP-1", testAmount)
	c := createSettlement(t, svc, "SUP-1")
	_, _, err := svc.AddItems(context.Background(), testOrg, alice, c.ID, []uuid.UUID{rec.ID})
	require.NoError(t, err)

	// Age the draft past the cutoff.
	aged := repo.cases[c.ID]
	aged.UpdatedAt = time.Now().Add(-30 * 24 * time.Hour)
	repo.cases[c.ID] = aged

	swept, err := svc.SweepStaleDrafts(context.Background(), time.Now().Add(-14*24*time.Hour), 10)
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	stored, err := repo.GetCase(context.Background(), testOrg, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, stored.Status)
	require.Nil(t, repo.records[rec.ID].CaseID)

	events := emitter.byAction("settlement_cancel")
	require.Len(t, events, 1)
	require.Equal(t, SystemActor.Email, events[0].ActorEmail)
}
