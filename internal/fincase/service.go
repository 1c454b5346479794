package fincase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-travel/meridian/internal/shared"
)

// SystemActor performs engine-initiated transitions such as the stale draft
// sweep.
var SystemActor = shared.Actor{ID: uuid.Nil, Email: "system@meridian.local"}

// Service is the case state machine engine shared by settlement runs and
// refund cases. Every mutating operation runs in one transaction combining
// the lock changes with a compare-and-swap on the case status, then emits
// its audit trail best-effort after commit.
type Service struct {
	repo    Repository
	locks   *LockManager
	emitter Emitter
	cache   *ViewCache
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the engine. Emitter and cache may be nil.
func NewService(repo Repository, locks *LockManager, emitter Emitter, cache *ViewCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		locks:   locks,
		emitter: emitter,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create opens a new draft case after checking the one-open-case rule for
// the (organization, kind, scope, currency) tuple.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, actor shared.Actor, in CreateCaseInput) (Case, error) {
	if err := in.Validate(); err != nil {
		return Case{}, err
	}
	now := s.now()
	c := Case{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Kind:           in.Kind,
		Status:         StatusDraft,
		Currency:       in.Currency,
		ScopeRef:       in.scopeRef(),
		Period:         in.Period,
		BookingRef:     in.BookingRef,
		CreatedBy:      actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.HasOpenCase(ctx, orgID, in.Kind, c.ScopeRef, c.Period, c.Currency)
		if err != nil {
			return err
		}
		if exists {
			return NewConflict(CodeOpenCaseExists, "an open case already exists for this scope", map[string]any{
				"scope_ref": c.ScopeRef,
				"currency":  c.Currency,
			})
		}
		return tx.InsertCase(ctx, c)
	})
	if err != nil {
		return Case{}, err
	}
	s.emit(ctx, Event{
		Action:         ActionName(in.Kind, OpCreate),
		CaseID:         c.ID,
		OrganizationID: orgID,
		BookingRef:     c.BookingRef,
		ActorID:        actor.ID,
		ActorEmail:     actor.Email,
		StatusTo:       StatusDraft,
		At:             now,
	})
	return c, nil
}

// ItemsResult reports an item mutation: how many records changed hands and
// the live totals of everything the case holds afterwards.
type ItemsResult struct {
	Count  int
	Totals Totals
}

// AddItems reserves the given records for a draft case and returns the live
// totals of everything currently locked.
func (s *Service) AddItems(ctx context.Context, orgID uuid.UUID, actor shared.Actor, caseID uuid.UUID, recordIDs []uuid.UUID) (Case, ItemsResult, error) {
	var c Case
	var result ItemsResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		c, err = tx.GetCaseForUpdate(ctx, orgID, caseID)
		if err != nil {
			return err
		}
		if _, err := Transition(c.Kind, OpAddItems, c.Status); err != nil {
			return err
		}
		added, err := s.locks.Reserve(ctx, tx, c, recordIDs)
		if err != nil {
			return err
		}
		locked, err := tx.LockedRecords(ctx, orgID, caseID)
		if err != nil {
			return err
		}
		result = ItemsResult{Count: added, Totals: liveTotals(locked)}
		return s.casUpdate(ctx, tx, c, CasePatch{Status: StatusDraft, UpdatedAt: s.now()})
	})
	if err != nil {
		return Case{}, ItemsResult{}, err
	}
	s.emit(ctx, s.event(c, actor, OpAddItems, StatusDraft, StatusDraft))
	return c, result, nil
}

// RemoveItems releases the given records from a draft case. Releasing a
// record the case does not hold is a no-op.
func (s *Service) RemoveItems(ctx context.Context, orgID uuid.UUID, actor shared.Actor, caseID uuid.UUID, recordIDs []uuid.UUID) (Case, ItemsResult, error) {
	var c Case
	var result ItemsResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		c, err = tx.GetCaseForUpdate(ctx, orgID, caseID)
		if err != nil {
			return err
		}
		if _, err := Transition(c.Kind, OpRemoveItems, c.Status); err != nil {
			return err
		}
		released, err := s.locks.Release(ctx, tx, c, recordIDs)
		if err != nil {
			return err
		}
		locked, err := tx.LockedRecords(ctx, orgID, caseID)
		if err != nil {
			return err
		}
		result = ItemsResult{Count: released, Totals: liveTotals(locked)}
		return s.casUpdate(ctx, tx, c, CasePatch{Status: StatusDraft, UpdatedAt: s.now()})
	})
	if err != nil {
		return Case{}, ItemsResult{}, err
	}
	s.emit(ctx, s.event(c, actor, OpRemoveItems, StatusDraft, StatusDraft))
	return c, result, nil
}

// Approve moves a settlement run from draft to approved, freezing the
// snapshot and recording the sign-off.
func (s *Service) Approve(ctx context.Context, orgID uuid.UUID, actor shared.Actor, caseID uuid.UUID) (Case, error) {
	var approvedAmount decimal.Decimal
	c, err := s.applyTransition(ctx, orgID, caseID, OpApprove, func(c Case, tx TxRepository, target Status) (CasePatch, error) {
		items, err := s.freezeSnapshot(ctx, tx, c)
		if err != nil {
			return CasePatch{}, err
		}
		totals := ComputeTotals(items)
		approvedAmount = totals.TotalAmount
		step := &ApprovalStep{By: actor.ID, Email: actor.Email, At: s.now(), Amount: totals.TotalAmount}
		return CasePatch{Status: target, LineItems: items, Freeze: true, Step1: step, UpdatedAt: s.now()}, nil
	})
	if err != nil {
		return Case{}, err
	}
	ev := s.event(c, actor, OpApprove, StatusDraft, StatusApproved)
	ev.ApprovedAmount = &approvedAmount
	s.emit(ctx, ev)
	return c, nil
}

// Submit moves a refund case from draft into the approval pipeline,
// freezing the snapshot.
func (s *Service) Submit(ctx context.Context, orgID uuid.UUID, actor shared.Actor, caseID uuid.UUID, note string) (Case, error) {
	c, err := s.applyTransition(ctx, orgID, caseID, OpSubmit, func(c Case, tx TxRepository, target Status) (CasePatch, error) {
		items, err := s.freezeSnapshot(ctx, tx, c)
		if err != nil {
			return CasePatch{}, err
		}
		patch := CasePatch{Status: target, LineItems: items, Freeze: true, UpdatedAt: s.now()}
		if note != "" {
			patch.Note = &note
		}
		return patch, nil
	})
	if err != nil {
		return Case{}, err
	}
	s.emit(ctx, s.event(c, actor, OpSubmit, StatusDraft, c.Status))
	return c, nil
}

// ApproveStep1 records the first sign-off on a refund case. Called directly
// from draft it also freezes the snapshot. A zero approved amount defaults to
// the snapshot total; a negative amount or one above the total is rejected.
func (s *Service) ApproveStep1(ctx context.Context, orgID uuid.UUID, actor shared.Actor, caseID uuid.UUID, approvedAmount decimal.Decimal) (Case, error) {
	var fromStatus Status
	c, err := s.applyTransition(ctx, orgID, caseID, OpApproveStep1, func(c Case, tx TxRepository, target Status) (CasePatch, error) {
		fromStatus = c.Status
		patch := CasePatch{Status: target, UpdatedAt: s.now()}
		if c.Status == StatusDraft {
			items, err := s.freezeSnapshot(ctx, tx, c)
			if err != nil {
				return CasePatch{}, err
			}
			patch.LineItems = items
			patch.Freeze = true
		}
		total := ComputeTotals(c.LineItems).TotalAmount
		if patch.Freeze {
			total = ComputeTotals(patch.LineItems).TotalAmount
		}
		amount := approvedAmount
		if amount.IsNegative() {
			return CasePatch{}, NewConflict(CodeInvalidAmount, "approved amount must not be negative", map[string]any{
				"approved_amount": approvedAmount.String(),
			})
		}
		if amount.IsZero() {
			amount = total
		}
		if amount.GreaterThan(total) {
			return CasePatch{}, NewConflict(CodeInvalidAmount, "approved amount exceeds the case total", map[string]any{
				"approved_amount": approvedAmount.String(),
				"case_total":      total.String(),
			})
		}
		patch.Step1 = &ApprovalStep{By: actor.ID, Email: actor.Email, At: s.now(), Amount: amount}
		return patch, nil
	})
	if err != nil {
		return Case{}, err
	}
	ev := s.event(c, actor, OpApproveStep1, fromStatus, c.Status)
	if c.Approval.Step1 != nil {
		amount := c.Approval.Step1.Amount
		ev.ApprovedAmount = &amount
	}
	s.emit(ctx, ev)
	return c, nil
}

// ApproveStep2 records the second sign-off. The second approver must be a
// different identity than the first (four-eyes control).
func (s *Service) ApproveStep2(ctx context.Context, orgID uuid.UUID, actor shared.Actor, caseID uuid.UUID, note string) (Case, error) {
	c, err := s.applyTransition(ctx, orgID, caseID, OpApproveStep2, func(c Case, tx TxRepository, target Status) (CasePatch, error) {
		if c.Approval.Step1 == nil {
			return CasePatch{}, NewConflict(CodeInvalidCaseState, "first approval is missing", nil)
		}
		if c.Approval.Step1.By == actor.ID {
			return CasePatch{}, NewConflict(CodeFourEyesViolation, "second approval must come from a different user than the first", map[string]any{
				"step1_by": c.Approval.Step1.Email,
			})
		}
		patch := CasePatch{Status: target, UpdatedAt: s.now()}
		patch.Step2 = &ApprovalStep{By: actor.ID, Email: actor.Email, At: s.now()}
		if note != "" {
			patch.Note = &note
		}
		return patch, nil
	})
	if err != nil {
		return Case{}, err
	}
	s.emit(ctx, s.event(c, actor, OpApproveStep2, StatusPendingApproval2, StatusApproved))
	return c, nil
}

// Reject declines a refund case from any pre-approval status, recording the
// reason. Locked records stay attached to the rejected case; a declined
// claim does not return to the free pool. Unlike the approval path, an empty
// draft may be rejected; its snapshot freezes empty.
func (s *Service) Reject(ctx context.Context, orgID uuid.UUID, actor shared.Actor, caseID uuid.UUID, reason string) (Case, error) {
	var fromStatus Status
	c, err := s.applyTransition(ctx, orgID, caseID, OpReject, func(c Case, tx TxRepository, target Status) (CasePatch, error) {
		fromStatus = c.Status
		patch := CasePatch{Status: target, CancelReason: &reason, UpdatedAt: s.now()}
		if c.Status == StatusDraft {
			locked, err := tx.LockedRecords(ctx, c.OrganizationID, c.ID)
			if err != nil {
				return CasePatch{}, err
			}
			patch.LineItems = snapshotFrom(locked)
			patch.Freeze = true
		}
		return patch, nil
	})
	if err != nil {
		return Case{}, err
	}
	ev := s.event(c, actor, OpReject, fromStatus, StatusRejected)
	ev.Reason = reason
	s.emit(ctx, ev)
	return c, nil
}

// MarkPaid records payment of an approved case and moves the held records to
// their terminal status in the same transaction.
func (s *Service) MarkPaid(ctx context.Context, orgID uuid.UUID, actor shared.Actor, caseID uuid.UUID, reference string) (Case, error) {
	c, err := s.applyTransition(ctx, orgID, caseID, OpMarkPaid, func(c Case, tx TxRepository, target Status) (CasePatch, error) {
		if _, err := tx.SettleAllRecords(ctx, orgID, caseID); err != nil {
			return CasePatch{}, err
		}
		return CasePatch{Status: target, PaymentReference: &reference, UpdatedAt: s.now()}, nil
	})
	if err != nil {
		return Case{}, err
	}
	ev := s.event(c, actor, OpMarkPaid, StatusApproved, StatusPaid)
	ev.PaymentReference = reference
	s.emit(ctx, ev)
	return c, nil
}

// Close finishes a paid (or, for refunds, rejected) case.
func (s *Service) Close(ctx context.Context, orgID uuid.UUID, actor shared.Actor, caseID uuid.UUID, note string) (Case, error) {
	var fromStatus Status
	c, err := s.applyTransition(ctx, orgID, caseID, OpClose, func(c Case, tx TxRepository, target Status) (CasePatch, error) {
		fromStatus = c.Status
		closedAt := s.now()
		patch := CasePatch{Status: target, ClosedAt: &closedAt, UpdatedAt: closedAt}
		if note != "" {
			patch.Note = &note
		}
		return patch, nil
	})
	if err != nil {
		return Case{}, err
	}
	s.emit(ctx, s.event(c, actor, OpClose, fromStatus, StatusClosed))
	return c, nil
}

// Cancel abandons a draft or approved case and returns every record it still
// holds to the free pool in the same transaction.
func (s *Service) Cancel(ctx context.Context, orgID uuid.UUID, actor shared.Actor, caseID uuid.UUID, reason string) (Case, error) {
	var fromStatus Status
	c, err := s.applyTransition(ctx, orgID, caseID, OpCancel, func(c Case, tx TxRepository, target Status) (CasePatch, error) {
		fromStatus = c.Status
		if _, err := s.locks.ReleaseAll(ctx, tx, c); err != nil {
			return CasePatch{}, err
		}
		return CasePatch{Status: target, CancelReason: &reason, UpdatedAt: s.now()}, nil
	})
	if err != nil {
		return Case{}, err
	}
	ev := s.event(c, actor, OpCancel, fromStatus, StatusCancelled)
	ev.Reason = reason
	s.emit(ctx, ev)
	return c, nil
}

// SweepStaleDrafts cancels draft cases idle since before the cutoff,
// releasing their locks through the normal cancel path. Returns the number
// of cancelled cases.
func (s *Service) SweepStaleDrafts(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	drafts, err := s.repo.ListStaleDrafts(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, c := range drafts {
		if _, err := s.Cancel(ctx, c.OrganizationID, SystemActor, c.ID, "stale draft expired"); err != nil {
			if _, ok := AsConflict(err); ok {
				continue
			}
			return swept, err
		}
		swept++
	}
	return swept, nil
}

// applyTransition is the shared engine path: load the case in-tx, resolve
// the transition table, build the patch, and apply it with a status CAS.
func (s *Service) applyTransition(ctx context.Context, orgID, caseID uuid.UUID, op Op, build func(Case, TxRepository, Status) (CasePatch, error)) (Case, error) {
	var result Case
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetCaseForUpdate(ctx, orgID, caseID)
		if err != nil {
			return err
		}
		target, err := Transition(c.Kind, op, c.Status)
		if err != nil {
			return err
		}
		patch, err := build(c, tx, target)
		if err != nil {
			return err
		}
		if err := s.casUpdate(ctx, tx, c, patch); err != nil {
			return err
		}
		result = applyPatch(c, patch)
		return nil
	})
	if err != nil {
		return Case{}, err
	}
	return result, nil
}

// freezeSnapshot copies the live locked records into the immutable line item
// snapshot, enforcing the non-empty precondition.
func (s *Service) freezeSnapshot(ctx context.Context, tx TxRepository, c Case) ([]LineItem, error) {
	locked, err := tx.LockedRecords(ctx, c.OrganizationID, c.ID)
	if err != nil {
		return nil, err
	}
	if len(locked) == 0 {
		return nil, NewConflict(CodeCaseEmpty, "case has no records to approve", nil)
	}
	return snapshotFrom(locked), nil
}

// casUpdate applies the patch guarded on the loaded status; a failed guard
// means a concurrent request advanced the case first.
func (s *Service) casUpdate(ctx context.Context, tx TxRepository, c Case, patch CasePatch) error {
	ok, err := tx.UpdateCase(ctx, c.OrganizationID, c.ID, c.Status, patch)
	if err != nil {
		return err
	}
	if !ok {
		return NewConflict(CodeInvalidCaseState, "case was modified concurrently", map[string]any{"status": string(c.Status)})
	}
	return nil
}

func applyPatch(c Case, patch CasePatch) Case {
	c.Status = patch.Status
	if patch.Freeze {
		c.LineItems = patch.LineItems
	}
	if patch.Step1 != nil {
		c.Approval.Step1 = patch.Step1
	}
	if patch.Step2 != nil {
		c.Approval.Step2 = patch.Step2
	}
	if patch.Note != nil {
		c.Note = *patch.Note
	}
	if patch.PaymentReference != nil {
		c.PaymentReference = *patch.PaymentReference
	}
	if patch.CancelReason != nil {
		c.CancelReason = *patch.CancelReason
	}
	if patch.ClosedAt != nil {
		c.ClosedAt = patch.ClosedAt
	}
	c.UpdatedAt = patch.UpdatedAt
	return c
}

func (s *Service) event(c Case, actor shared.Actor, op Op, fromStatus, toStatus Status) Event {
	return Event{
		Action:         ActionName(c.Kind, op),
		CaseID:         c.ID,
		OrganizationID: c.OrganizationID,
		BookingRef:     c.BookingRef,
		ActorID:        actor.ID,
		ActorEmail:     actor.Email,
		StatusFrom:     fromStatus,
		StatusTo:       toStatus,
		At:             s.now(),
	}
}

// emit hands an event to the emitter. Emission failures are logged and never
// roll the transition back.
func (s *Service) emit(ctx context.Context, ev Event) {
	s.bumpCache(ctx)
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(ctx, ev); err != nil {
		s.logger.Error("emit transition event",
			slog.String("action", ev.Action),
			slog.String("case_id", ev.CaseID.String()),
			slog.Any("error", err))
	}
}

func (s *Service) bumpCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump view cache", slog.Any("error", err))
	}
}
