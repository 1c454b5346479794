package ledger

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Kind discriminates the two families of ledger records.
type Kind string

const (
	// KindAccrual is a payable owed to a supplier, pending settlement.
	KindAccrual Kind = "ACCRUAL"
	// KindRefundRequest is a customer refund claim, pending approval.
	KindRefundRequest Kind = "REFUND_REQUEST"
)

// Status enumerates ledger record lifecycle stages.
type Status string

const (
	// StatusAccrued is the free status for accruals.
	StatusAccrued Status = "ACCRUED"
	// StatusRequested is the free status for refund requests.
	StatusRequested Status = "REQUESTED"
	// StatusInCase marks a record reserved by a finance case.
	StatusInCase Status = "IN_CASE"
	// StatusSettled is the terminal status an accrual reaches when its
	// settlement run is paid.
	StatusSettled Status = "SETTLED"
	// StatusPaid is the terminal status a refund request reaches when its
	// case is paid.
	StatusPaid Status = "PAID"
	// StatusReversed marks a record voided by an upstream flow. Reversed
	// records are never eligible for reservation.
	StatusReversed Status = "REVERSED"
)

// FreeStatus returns the status a free record of the given kind carries, and
// the status a released record returns to.
func FreeStatus(kind Kind) Status {
	if kind == KindRefundRequest {
		return StatusRequested
	}
	return StatusAccrued
}

// TerminalStatus returns the status a record of the given kind reaches when
// its case is paid.
func TerminalStatus(kind Kind) Status {
	if kind == KindRefundRequest {
		return StatusPaid
	}
	return StatusSettled
}

// Record is an atomic financial fact created by an upstream business flow.
// Amount is immutable once created; Status and CaseID only ever change
// together.
type Record struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Kind           Kind
	// OwnerRef is the supplier id for accruals and the booking reference
	// for refund requests.
	OwnerRef  string
	Currency  string
	Amount    decimal.Decimal
	Status    Status
	CaseID    *uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Eligible reports whether the record can be reserved by a case.
func (r Record) Eligible() bool {
	return r.Status == FreeStatus(r.Kind) && r.CaseID == nil
}

// CreateRecordInput captures the fields supplied by upstream flows.
type CreateRecordInput struct {
	OrganizationID uuid.UUID
	Kind           Kind
	OwnerRef       string
	Currency       string
	Amount         decimal.Decimal
}

// Validate checks the input before persisting.
func (in CreateRecordInput) Validate() error {
	if in.OrganizationID == uuid.Nil {
		return errors.New("ledger: organization required")
	}
	if in.Kind != KindAccrual && in.Kind != KindRefundRequest {
		return errors.New("ledger: unknown record kind")
	}
	if strings.TrimSpace(in.OwnerRef) == "" {
		return errors.New("ledger: owner reference required")
	}
	if _, err := currency.ParseISO(in.Currency); err != nil {
		return errors.New("ledger: invalid currency code")
	}
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("ledger: amount must be positive")
	}
	return nil
}
