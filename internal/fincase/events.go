package fincase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event describes one successful transition. The engine returns events as an
// outbox and the service hands them to the emitter only after the
// transaction commits; emission is best-effort and never rolls the
// transition back.
type Event struct {
	Action           string
	CaseID           uuid.UUID
	OrganizationID   uuid.UUID
	BookingRef       string
	ActorID          uuid.UUID
	ActorEmail       string
	StatusFrom       Status
	StatusTo         Status
	Reason           string
	ApprovedAmount   *decimal.Decimal
	PaymentReference string
	At               time.Time
}

// Emitter consumes transition events. The audit package provides the
// persistent implementation; tests use an in-memory recorder.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// actionNames maps an operation to its audit action per kind, so a refund
// rejection is recorded as refund_reject rather than a generic status change.
var actionNames = map[Kind]map[Op]string{
	KindSettlement: {
		OpCreate:      "settlement_create",
		OpAddItems:    "settlement_items_add",
		OpRemoveItems: "settlement_items_remove",
		OpApprove:     "settlement_approve",
		OpMarkPaid:    "settlement_mark_paid",
		OpClose:       "settlement_close",
		OpCancel:      "settlement_cancel",
	},
	KindRefund: {
		OpCreate:       "refund_create",
		OpAddItems:     "refund_items_add",
		OpRemoveItems:  "refund_items_remove",
		OpSubmit:       "refund_submit",
		OpApproveStep1: "refund_approve_step1",
		OpApproveStep2: "refund_approve_step2",
		OpReject:       "refund_reject",
		OpMarkPaid:     "refund_mark_paid",
		OpClose:        "refund_close",
		OpCancel:       "refund_cancel",
	},
}

// OpCreate is not part of the transition table; it only names the creation
// audit action.
const OpCreate Op = "create"

// ActionName resolves the audit action for a kind/operation pair.
func ActionName(kind Kind, op Op) string {
	return actionNames[kind][op]
}
