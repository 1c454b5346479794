package settlement

import "github.com/meridian-travel/meridian/internal/fincase"

type createRequest struct {
	SupplierID string `json:"supplier_id" validate:"required"`
	Period     string `json:"period" validate:"required"`
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

type markPaidRequest struct {
	PaymentReference string `json:"payment_reference"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}
