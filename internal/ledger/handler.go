package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-travel/meridian/internal/platform/httpx"
	"github.com/meridian-travel/meridian/internal/shared"
)

// Handler manages ledger record endpoints used by upstream booking flows and
// by operators browsing the free pool.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes. Accruals and refund requests are
// created by upstream booking flows through kind-specific endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/accruals", h.createKind(KindAccrual))
	r.Post("/refund-requests", h.createKind(KindRefundRequest))
	r.Get("/ledger/records", h.listEligible)
	r.Get("/ledger/records/{id}", h.get)
}

type createRecordRequest struct {
	OwnerRef string          `json:"owner_ref" validate:"required"`
	Currency string          `json:"currency" validate:"required,len=3"`
	Amount   decimal.Decimal `json:"amount" validate:"required"`
}

type recordResponse struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	OwnerRef  string          `json:"owner_ref"`
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	CaseID    *string         `json:"case_id,omitempty"`
	CreatedAt string          `json:"created_at"`
}

func toResponse(rec Record) recordResponse {
	resp := recordResponse{
		ID:        rec.ID.String(),
		Kind:      string(rec.Kind),
		OwnerRef:  rec.OwnerRef,
		Currency:  rec.Currency,
		Amount:    rec.Amount,
		Status:    string(rec.Status),
		CreatedAt: rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.CaseID != nil {
		id := rec.CaseID.String()
		resp.CaseID = &id
	}
	return resp
}

func (h *Handler) createKind(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRecordRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Error(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Error(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
			return
		}
		ctx := r.Context()
		rec, err := h.service.Create(ctx, CreateRecordInput{
			OrganizationID: shared.OrgFromContext(ctx),
			Kind:           kind,
			OwnerRef:       req.OwnerRef,
			Currency:       req.Currency,
			Amount:         req.Amount,
		})
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
			return
		}
		httpx.JSON(w, http.StatusCreated, toResponse(rec))
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_id", "record id must be a valid uuid", nil)
		return
	}
	rec, err := h.service.Get(r.Context(), shared.OrgFromContext(r.Context()), id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			httpx.Error(w, http.StatusNotFound, "not_found", "ledger record not found", nil)
			return
		}
		h.logger.Error("get ledger record", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) listEligible(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := Kind(q.Get("kind"))
	if kind != KindAccrual && kind != KindRefundRequest {
		httpx.Error(w, http.StatusBadRequest, "validation_failed", "kind must be ACCRUAL or REFUND_REQUEST", nil)
		return
	}
	ownerRef := q.Get("owner_ref")
	curr := q.Get("currency")
	if ownerRef == "" || curr == "" {
		httpx.Error(w, http.StatusBadRequest, "validation_failed", "owner_ref and currency are required", nil)
		return
	}
	records, err := h.service.ListEligible(r.Context(), shared.OrgFromContext(r.Context()), kind, ownerRef, curr)
	if err != nil {
		h.logger.Error("list eligible records", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"records": out})
}
