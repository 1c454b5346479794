package fincase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItemView is a public line item entry.
type LineItemView struct {
	RecordID string          `json:"record_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// ApprovalView exposes the sign-off trail without storage internals.
type ApprovalView struct {
	Step1 *ApprovalStep `json:"step1,omitempty"`
	Step2 *ApprovalStep `json:"step2,omitempty"`
}

// View is the read model returned by the API. Totals are recomputed on every
// read: from the frozen snapshot once the case left draft, from the live
// locked records while it is still in draft. Post-approval the view exposes
// only the frozen snapshot, never current lock membership.
type View struct {
	ID               string          `json:"id"`
	Kind             string          `json:"kind"`
	Status           string          `json:"status"`
	Currency         string          `json:"currency"`
	SupplierID       string          `json:"supplier_id,omitempty"`
	Period           string          `json:"period,omitempty"`
	BookingRef       string          `json:"booking_ref,omitempty"`
	LineItems        []LineItemView  `json:"line_items"`
	Totals           Totals          `json:"totals"`
	Approval         ApprovalView    `json:"approval"`
	Note             string          `json:"note,omitempty"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	CancelReason     string          `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	ClosedAt         *time.Time      `json:"closed_at,omitempty"`
}

// BuildView projects a case for API responses. draftItems carries the live
// locked records' line items while the case is in draft and is ignored once
// the snapshot is frozen.
func BuildView(c Case, draftItems []LineItem) View {
	items := c.LineItems
	if !c.Frozen() {
		items = draftItems
	}
	itemViews := make([]LineItemView, 0, len(items))
	for _, item := range items {
		itemViews = append(itemViews, LineItemView{RecordID: item.RecordID.String(), Amount: item.Amount})
	}
	v := View{
		ID:               c.ID.String(),
		Kind:             string(c.Kind),
		Status:           string(c.Status),
		Currency:         c.Currency,
		Period:           c.Period,
		BookingRef:       c.BookingRef,
		LineItems:        itemViews,
		Totals:           ComputeTotals(items),
		Approval:         ApprovalView{Step1: c.Approval.Step1, Step2: c.Approval.Step2},
		Note:             c.Note,
		PaymentReference: c.PaymentReference,
		CancelReason:     c.CancelReason,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
		ClosedAt:         c.ClosedAt,
	}
	if c.Kind == KindSettlement {
		v.SupplierID = c.ScopeRef
	}
	return v
}

// GetView loads the projected read model for one case, caching through the
// versioned view cache when configured.
func (s *Service) GetView(ctx context.Context, orgID, caseID uuid.UUID) (View, error) {
	load := func(ctx context.Context) (View, error) {
		c, err := s.repo.GetCase(ctx, orgID, caseID)
		if err != nil {
			return View{}, err
		}
		var draftItems []LineItem
		if !c.Frozen() {
			locked, err := s.repo.LockedRecords(ctx, orgID, caseID)
			if err != nil {
				return View{}, err
			}
			draftItems = snapshotFrom(locked)
		}
		return BuildView(c, draftItems), nil
	}
	if s.cache == nil {
		return load(ctx)
	}
	key, err := s.cache.BuildKey(ctx, "fincase", "view", orgID.String(), caseID.String())
	if err != nil {
		s.logger.Warn("view cache key", "error", err)
		return load(ctx)
	}
	var view View
	err = s.cache.FetchJSON(ctx, key, &view, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	if err != nil {
		return View{}, err
	}
	return view, nil
}

// ListViews returns projected cases of one kind for the organization.
func (s *Service) ListViews(ctx context.Context, orgID uuid.UUID, kind Kind, limit, offset int) ([]View, error) {
	cases, err := s.repo.ListCases(ctx, orgID, kind, limit, offset)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(cases))
	for _, c := range cases {
		var draftItems []LineItem
		if !c.Frozen() {
			locked, err := s.repo.LockedRecords(ctx, orgID, c.ID)
			if err != nil {
				return nil, err
			}
			draftItems = snapshotFrom(locked)
		}
		views = append(views, BuildView(c, draftItems))
	}
	return views, nil
}
