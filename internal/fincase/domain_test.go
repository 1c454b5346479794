package fincase

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	next, err := Transition(KindSettlement, OpApprove, StatusDraft)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, next)

	next, err = Transition(KindRefund, OpSubmit, StatusDraft)
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval1, next)

	next, err = Transition(KindRefund, OpApproveStep2, StatusPendingApproval2)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, next)

	// Settlements have no two-step approval.
	_, err = Transition(KindSettlement, OpApproveStep1, StatusDraft)
	require.Error(t, err)

	// Refunds never take the single-step approve.
	_, err = Transition(KindRefund, OpApprove, StatusDraft)
	require.Error(t, err)
}

func TestIllegalTransitionCodes(t *testing.T) {
	_, err := Transition(KindSettlement, OpAddItems, StatusApproved)
	conflict, ok := AsConflict(err)
	require.True(t, ok)
	require.Equal(t, CodeCaseNotDraft, conflict.Code)

	_, err = Transition(KindSettlement, OpCancel, StatusPaid)
	conflict, ok = AsConflict(err)
	require.True(t, ok)
	require.Equal(t, CodeCaseAlreadyFinalized, conflict.Code)

	_, err = Transition(KindSettlement, OpMarkPaid, StatusDraft)
	conflict, ok = AsConflict(err)
	require.True(t, ok)
	require.Equal(t, CodeInvalidCaseState, conflict.Code)
}

func TestStatusSets(t *testing.T) {
	require.True(t, StatusDraft.Open())
	require.True(t, StatusPendingApproval2.Open())
	require.True(t, StatusApproved.Open())
	require.False(t, StatusPaid.Open())
	require.False(t, StatusRejected.Open())

	require.True(t, StatusPaid.Finalized())
	require.True(t, StatusCancelled.Finalized())
	require.False(t, StatusRejected.Finalized())
	require.False(t, StatusApproved.Finalized())
}

func TestComputeTotals(t *testing.T) {
	items := []LineItem{
		{Amount: decimal.RequireFromString("10.50")},
		{Amount: decimal.RequireFromString("4.25")},
	}
	totals := ComputeTotals(items)
	require.Equal(t, 2, totals.Count)
	require.True(t, totals.TotalAmount.Equal(decimal.RequireFromString("14.75")))

	empty := ComputeTotals(nil)
	require.Equal(t, 0, empty.Count)
	require.True(t, empty.TotalAmount.IsZero())
}

func TestCreateCaseInputValidate(t *testing.T) {
	require.NoError(t, CreateCaseInput{Kind: KindSettlement, SupplierID: "SUP-1", Period: "2026-08", Currency: "EUR"}.Validate())
	require.NoError(t, CreateCaseInput{Kind: KindRefund, BookingRef: "BK-1", Currency: "TRY"}.Validate())

	require.Error(t, CreateCaseInput{Kind: KindSettlement, Period: "2026-08", Currency: "EUR"}.Validate())
	require.Error(t, CreateCaseInput{Kind: KindSettlement, SupplierID: "SUP-1", Currency: "EUR"}.Validate())
	require.Error(t, CreateCaseInput{Kind: KindRefund, Currency: "EUR"}.Validate())
	require.Error(t, CreateCaseInput{Kind: KindRefund, BookingRef: "BK-1", Currency: "EURO"}.Validate())
	require.Error(t, CreateCaseInput{Kind: Kind("OTHER"), Currency: "EUR"}.Validate())
}
