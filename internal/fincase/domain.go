package fincase

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Kind discriminates the two finance case families sharing the engine.
type Kind string

const (
	// KindSettlement batches supplier accruals for one supplier/period/currency.
	KindSettlement Kind = "SETTLEMENT"
	// KindRefund moves a customer refund claim through two-step approval.
	KindRefund Kind = "REFUND"
)

// Status enumerates case lifecycle stages.
type Status string

const (
	StatusDraft            Status = "DRAFT"
	StatusPendingApproval1 Status = "PENDING_APPROVAL_1"
	StatusPendingApproval2 Status = "PENDING_APPROVAL_2"
	StatusApproved         Status = "APPROVED"
	StatusPaid             Status = "PAID"
	StatusClosed           Status = "CLOSED"
	StatusRejected         Status = "REJECTED"
	StatusCancelled        Status = "CANCELLED"
)

// Open reports whether the case still counts against the one-open-case
// uniqueness rule. Paid, closed, rejected and cancelled cases free the tuple.
func (s Status) Open() bool {
	switch s {
	case StatusDraft, StatusPendingApproval1, StatusPendingApproval2, StatusApproved:
		return true
	}
	return false
}

// Finalized reports whether the case has reached a one-way end of life.
func (s Status) Finalized() bool {
	switch s {
	case StatusPaid, StatusClosed, StatusCancelled:
		return true
	}
	return false
}

// Op enumerates the engine operations subject to the transition table.
type Op string

const (
	OpAddItems     Op = "add_items"
	OpRemoveItems  Op = "remove_items"
	OpSubmit       Op = "submit"
	OpApprove      Op = "approve"
	OpApproveStep1 Op = "approve_step1"
	OpApproveStep2 Op = "approve_step2"
	OpReject       Op = "reject"
	OpMarkPaid     Op = "mark_paid"
	OpClose        Op = "close"
	OpCancel       Op = "cancel"
)

type rule struct {
	from map[Status]bool
	to   Status
}

func from(statuses ...Status) map[Status]bool {
	set := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		set[s] = true
	}
	return set
}

// transitions is the explicit transition table: (kind, operation) to the set
// of legal current statuses and the resulting status. Item mutations keep the
// case in draft and are listed so the same guard path covers them.
var transitions = map[Kind]map[Op]rule{
	KindSettlement: {
		OpAddItems:    {from: from(StatusDraft), to: StatusDraft},
		OpRemoveItems: {from: from(StatusDraft), to: StatusDraft},
		OpApprove:     {from: from(StatusDraft), to: StatusApproved},
		OpMarkPaid:    {from: from(StatusApproved), to: StatusPaid},
		OpClose:       {from: from(StatusPaid), to: StatusClosed},
		OpCancel:      {from: from(StatusDraft, StatusApproved), to: StatusCancelled},
	},
	KindRefund: {
		OpAddItems:     {from: from(StatusDraft), to: StatusDraft},
		OpRemoveItems:  {from: from(StatusDraft), to: StatusDraft},
		OpSubmit:       {from: from(StatusDraft), to: StatusPendingApproval1},
		OpApproveStep1: {from: from(StatusDraft, StatusPendingApproval1), to: StatusPendingApproval2},
		OpApproveStep2: {from: from(StatusPendingApproval2), to: StatusApproved},
		OpReject:       {from: from(StatusDraft, StatusPendingApproval1, StatusPendingApproval2), to: StatusRejected},
		OpMarkPaid:     {from: from(StatusApproved), to: StatusPaid},
		OpClose:        {from: from(StatusPaid, StatusRejected), to: StatusClosed},
		OpCancel:       {from: from(StatusDraft, StatusApproved), to: StatusCancelled},
	},
}

// Transition resolves the target status for an operation, or a Conflict when
// the operation is illegal for the current status.
func Transition(kind Kind, op Op, current Status) (Status, error) {
	table, ok := transitions[kind]
	if !ok {
		return "", errors.New("fincase: unknown case kind")
	}
	r, ok := table[op]
	if !ok || !r.from[current] {
		return "", illegalTransition(op, current)
	}
	return r.to, nil
}

func illegalTransition(op Op, current Status) *Conflict {
	switch op {
	case OpAddItems, OpRemoveItems, OpSubmit, OpApprove:
		return NewConflict(CodeCaseNotDraft, "case is not in draft", map[string]any{"status": string(current)})
	case OpCancel:
		if current.Finalized() {
			return NewConflict(CodeCaseAlreadyFinalized, "case is already finalized", map[string]any{"status": string(current)})
		}
	}
	return NewConflict(CodeInvalidCaseState, "operation not allowed in current case status", map[string]any{"status": string(current), "operation": string(op)})
}

// LineItem is one frozen entry of a case snapshot.
type LineItem struct {
	RecordID uuid.UUID       `json:"record_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// ApprovalStep records one human sign-off.
type ApprovalStep struct {
	By     uuid.UUID       `json:"by"`
	Email  string          `json:"by_email"`
	At     time.Time       `json:"at"`
	Amount decimal.Decimal `json:"amount,omitempty"`
}

// Approval groups the two sign-off slots.
type Approval struct {
	Step1 *ApprovalStep `json:"step1,omitempty"`
	Step2 *ApprovalStep `json:"step2,omitempty"`
}

// Totals are always derived from line items, never stored.
type Totals struct {
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// ComputeTotals derives totals from a set of line items.
func ComputeTotals(items []LineItem) Totals {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return Totals{Count: len(items), TotalAmount: total}
}

// Case is a settlement run or refund case. LineItems is empty while the case
// is in draft and frozen the moment it leaves draft through an approval path.
type Case struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Kind           Kind
	Status         Status
	Currency       string
	// ScopeRef is the supplier id for settlements and the booking
	// reference for refund cases; together with Period and Currency it
	// forms the one-open-case uniqueness tuple.
	ScopeRef         string
	Period           string
	BookingRef       string
	LineItems        []LineItem
	Approval         Approval
	Note             string
	PaymentReference string
	CancelReason     string
	CreatedBy        uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ClosedAt         *time.Time
}

// Frozen reports whether the snapshot has been taken.
func (c Case) Frozen() bool {
	return c.Status != StatusDraft
}

// CreateCaseInput captures creation parameters for either kind.
type CreateCaseInput struct {
	Kind       Kind
	SupplierID string
	Period     string
	BookingRef string
	Currency   string
}

// Validate checks the input and derives nothing; scope derivation happens in
// the service.
func (in CreateCaseInput) Validate() error {
	switch in.Kind {
	case KindSettlement:
		if strings.TrimSpace(in.SupplierID) == "" {
			return errors.New("fincase: supplier required for settlement")
		}
		if strings.TrimSpace(in.Period) == "" {
			return errors.New("fincase: period required for settlement")
		}
	case KindRefund:
		if strings.TrimSpace(in.BookingRef) == "" {
			return errors.New("fincase: booking reference required for refund case")
		}
	default:
		return errors.New("fincase: unknown case kind")
	}
	if _, err := currency.ParseISO(in.Currency); err != nil {
		return errors.New("fincase: invalid currency code")
	}
	return nil
}

// scopeRef derives the uniqueness scope for the input.
func (in CreateCaseInput) scopeRef() string {
	if in.Kind == KindRefund {
		return in.BookingRef
	}
	return in.SupplierID
}
