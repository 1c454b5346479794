// Package settlement exposes the supplier settlement run API. It is a thin
// router over the shared case engine: every rule lives in the engine, the
// handler only shapes requests and translates engine conflicts to the wire
// codes this surface promises.
package settlement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-travel/meridian/internal/fincase"
	"github.com/meridian-travel/meridian/internal/platform/httpx"
	"github.com/meridian-travel/meridian/internal/shared"
)

// Handler manages settlement run endpoints.
type Handler struct {
	logger      *slog.Logger
	engine      *fincase.Service
	idempotency *shared.IdempotencyStore
	validate    *validator.Validate
}

// NewHandler builds a Handler instance. The idempotency store may be nil, in
// which case Idempotency-Key headers are ignored.
func NewHandler(logger *slog.Logger, engine *fincase.Service, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, engine: engine, idempotency: idempotency, validate: validator.New()}
}

// MountRoutes registers settlement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/settlements", h.list)
	r.Post("/settlements", h.create)
	r.Get("/settlements/{id}", h.get)
	r.Post("/settlements/{id}/items:add", h.addItems)
	r.Post("/settlements/{id}/items:remove", h.removeItems)
	r.Post("/settlements/{id}/approve", h.approve)
	r.Post("/settlements/{id}/mark-paid", h.markPaid)
	r.Post("/settlements/{id}/close", h.close)
	r.Post("/settlements/{id}/cancel", h.cancel)
}

// wireCodes maps engine conflict codes to this surface's public codes.
var wireCodes = map[string]string{
	fincase.CodeOpenCaseExists:       "open_settlement_exists",
	fincase.CodeRecordNotEligible:    "accrual_not_eligible",
	fincase.CodeCaseNotDraft:         "settlement_not_draft",
	fincase.CodeCaseEmpty:            "settlement_empty",
	fincase.CodeCaseAlreadyFinalized: "settlement_already_paid",
}

func (h *Handler) respondErr(w http.ResponseWriter, err error, overrides map[string]string) {
	if conflict, ok := fincase.AsConflict(err); ok {
		code := conflict.Code
		if mapped, ok := overrides[code]; ok {
			code = mapped
		} else if mapped, ok := wireCodes[code]; ok {
			code = mapped
		}
		httpx.Error(w, http.StatusConflict, code, conflict.Message, conflict.Details)
		return
	}
	if errors.Is(err, fincase.ErrCaseNotFound) {
		httpx.Error(w, http.StatusNotFound, "not_found", "settlement not found", nil)
		return
	}
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		httpx.Error(w, http.StatusConflict, "duplicate_request", "request with this idempotency key was already processed", nil)
		return
	}
	h.logger.Error("settlement request failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
		return
	}
	ctx := r.Context()
	orgID := shared.OrgFromContext(ctx)
	actor := shared.ActorFromContext(ctx)
	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(ctx, orgID, key, "settlement:create"); err != nil {
			h.respondErr(w, err, nil)
			return
		}
	}
	c, err := h.engine.Create(ctx, orgID, actor, fincase.CreateCaseInput{
		Kind:       fincase.KindSettlement,
		SupplierID: req.SupplierID,
		Period:     req.Period,
		Currency:   req.Currency,
	})
	if err != nil {
		if key != "" && h.idempotency != nil {
			if delErr := h.idempotency.Delete(ctx, orgID, key); delErr != nil {
				h.logger.Warn("rollback idempotency key", slog.Any("error", delErr))
			}
		}
		h.respondErr(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, fincase.BuildView(c, nil))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	view, err := h.engine.GetView(r.Context(), shared.OrgFromContext(r.Context()), caseID)
	if err != nil {
		h.respondErr(w, err, nil)
		return
	}
	if view.Kind != string(fincase.KindSettlement) {
		httpx.Error(w, http.StatusNotFound, "not_found", "settlement not found", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	views, err := h.engine.ListViews(r.Context(), shared.OrgFromContext(r.Context()), fincase.KindSettlement, limit, offset)
	if err != nil {
		h.respondErr(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"settlements": views})
}

func (h *Handler) addItems(w http.ResponseWriter, r *http.Request) {
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	ids, ok := h.recordIDs(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	_, result, err := h.engine.AddItems(ctx, shared.OrgFromContext(ctx), shared.ActorFromContext(ctx), caseID, ids)
	if err != nil {
		h.respondErr(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, itemsResponse{Added: result.Count, Totals: result.Totals})
}

func (h *Handler) removeItems(w http.ResponseWriter, r *http.Request) {
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	ids, ok := h.recordIDs(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	_, result, err := h.engine.RemoveItems(ctx, shared.OrgFromContext(ctx), shared.ActorFromContext(ctx), caseID, ids)
	if err != nil {
		h.respondErr(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, itemsResponse{Removed: result.Count, Totals: result.Totals})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	c, err := h.engine.Approve(ctx, shared.OrgFromContext(ctx), shared.ActorFromContext(ctx), caseID)
	if err != nil {
		h.respondErr(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, fincase.BuildView(c, nil))
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	var req markPaidRequest
	if err := httpx.DecodeJSONOptional(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}
	ctx := r.Context()
	c, err := h.engine.MarkPaid(ctx, shared.OrgFromContext(ctx), shared.ActorFromContext(ctx), caseID, req.PaymentReference)
	if err != nil {
		h.respondErr(w, err, map[string]string{fincase.CodeInvalidCaseState: "settlement_not_approved"})
		return
	}
	httpx.JSON(w, http.StatusOK, fincase.BuildView(c, nil))
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	var req noteRequest
	if err := httpx.DecodeJSONOptional(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}
	ctx := r.Context()
	c, err := h.engine.Close(ctx, shared.OrgFromContext(ctx), shared.ActorFromContext(ctx), caseID, req.Note)
	if err != nil {
		h.respondErr(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, fincase.BuildView(c, nil))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if err := httpx.DecodeJSONOptional(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}
	ctx := r.Context()
	c, err := h.engine.Cancel(ctx, shared.OrgFromContext(ctx), shared.ActorFromContext(ctx), caseID, req.Reason)
	if err != nil {
		h.respondErr(w, err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, fincase.BuildView(c, nil))
}

func (h *Handler) caseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_id", "settlement id must be a valid uuid", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) recordIDs(w http.ResponseWriter, r *http.Request) ([]uuid.UUID, bool) {
	var req itemsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return nil, false
	}
	if len(req.RecordIDs) == 0 {
		httpx.Error(w, http.StatusBadRequest, "validation_failed", "record_ids must not be empty", nil)
		return nil, false
	}
	ids := make([]uuid.UUID, 0, len(req.RecordIDs))
	for _, raw := range req.RecordIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "invalid_id", "record ids must be valid uuids", map[string]any{"record_id": raw})
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func pagination(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
