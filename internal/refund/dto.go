package refund

import (
	"github.com/shopspring/decimal"

	"github.com/meridian-travel/meridian/internal/fincase"
)

type createRequest struct {
	BookingRef string `json:"booking_ref" validate:"required"`
	Currency   string `json:"currency" validate:"required,len=3"`
}

type itemsRequest struct {
	RecordIDs []string `json:"record_ids" validate:"required,min=1"`
}

type itemsResponse struct {
	Added   int            `json:"added,omitempty"`
	Removed int            `json:"removed,omitempty"`
	Totals  fincase.Totals `json:"totals"`
}

type approveStep1Request struct {
	ApprovedAmount decimal.Decimal `json:"approved_amount"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type markPaidRequest struct {
	PaymentReference string `json:"payment_reference"`
}
