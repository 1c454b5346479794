package fincase

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestBuildViewDraftUsesLiveItems(t *testing.T) {
	c := Case{
		ID:       uuid.New(),
		Kind:     KindSettlement,
		Status:   StatusDraft,
		Currency: "EUR",
		ScopeRef: "SUP-1",
		Period:   "2026-08",
	}
	live := []LineItem{{RecordID: uuid.New(), Amount: decimal.NewFromInt(75)}}

	view := BuildView(c, live)
	require.Len(t, view.LineItems, 1)
	require.True(t, view.Totals.TotalAmount.Equal(decimal.NewFromInt(75)))
	require.Equal(t, "SUP-1", view.SupplierID)
}

func TestBuildViewFrozenIgnoresLiveItems(t *testing.T) {
	frozen := []LineItem{{RecordID: uuid.New(), Amount: decimal.NewFromInt(500)}}
	c := Case{
		ID:        uuid.New(),
		Kind:      KindRefund,
		Status:    StatusApproved,
		Currency:  "EUR",
		ScopeRef:  "BK-1",
		LineItems: frozen,
		Approval: Approval{
			Step1: &ApprovalStep{By: uuid.New(), Email: "a@x", At: time.Now(), Amount: decimal.NewFromInt(500)},
			Step2: &ApprovalStep{By: uuid.New(), Email: "b@x", At: time.Now()},
		},
	}
	// Live items must never leak into a frozen view.
	live := []LineItem{{RecordID: uuid.New(), Amount: decimal.NewFromInt(9999)}}

	view := BuildView(c, live)
	require.Len(t, view.LineItems, 1)
	require.Equal(t, frozen[0].RecordID.String(), view.LineItems[0].RecordID)
	require.True(t, view.Totals.TotalAmount.Equal(decimal.NewFromInt(500)))
	require.Empty(t, view.SupplierID)
	require.NotNil(t, view.Approval.Step1)
	require.NotNil(t, view.Approval.Step2)
}
