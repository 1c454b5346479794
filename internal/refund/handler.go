// Package refund exposes the customer refund case API. Refund operations run
// on the shared case engine; this surface keeps the engine's conflict codes
// and replaces the messages with the Turkish texts the partner portal shows
// verbatim.
package refund

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

// Handler manages refund case endpoints.
type Handler struct {
	logger      *slog.Logger
	engine      *fincase.Service
	idempotency *shared.IdempotencyStore
	validate    *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, engine *fincase.Service, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, engine: engine, idempotency: idempotency, validate: validator.New()}
}

// MountRoutes registers refund routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/refunds", h.list)
	r.Post("/refunds", h.create)
	r.Get("/refunds/{id}", h.get)
	r.Post("/refunds/{id}/items:add", h.addItems)
	r.Post("/refunds/{id}/items:remove", h.removeItems)
	r.Post("/refunds/{id}/submit", h.submit)
	r.Post("/refunds/{id}/approve-step1", h.approveStep1)
	r.Post("/refunds/{id}/approve-step2", h.approveStep2)
	r.Post("/refunds/{id}/reject", h.reject)
	r.Post("/refunds/{id}/mark-paid", h.markPaid)
	r.Post("/refunds/{id}/close", h.close)
	r.Post("/refunds/{id}/cancel", h.cancel)
}

// userMessages carries the locale contract: these exact texts reach end
// users and must not be reworded without the partner portal team.
var userMessages = map[string]string{
	fincase.CodeOpenCaseExists:       "Bu rezervasyon için zaten açık bir iade talebi bulunuyor.",
	fincase.CodeRecordNotEligible:    "Seçilen iade kaydı bu talebe eklenemez; kayıt uygun durumda değil.",
	fincase.CodeCaseNotDraft:         "İade talebi taslak durumda değil; kalemler değiştirilemez.",
	fincase.CodeCaseEmpty:            "İade talebinde onaylanacak kayıt bulunmuyor.",
	fincase.CodeFourEyesViolation:    "İkinci onay, ilk onayı yapan kullanıcıdan farklı bir kullanıcı tarafından verilmelidir.",
	fincase.CodeInvalidAmount:        "Onaylanan tutar negatif olamaz ve talep toplamını aşamaz.",
	fincase.CodeInvalidCaseState:     "Bu işlem iade talebinin mevcut durumunda gerçekleştirilemez.",
	fincase.CodeCaseAlreadyFinalized: "İade talebi sonuçlanmış durumda; iptal edilemez.",
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	if conflict, ok := fincase.AsConflict(err); ok {
		message := conflict.Message
		if localized, ok := userMessages[conflict.Code]; ok {
			message = localized
		}
		httpx.Error(w, http.StatusConflict, conflict.Code, message, conflict.Details)
		return
	}
	if errors.Is(err, fincase.ErrCaseNotFound) {
		httpx.Error(w, http.StatusNotFound, "not_found", "İade talebi bulunamadı.", nil)
		return
	}
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		httpx.Error(w, http.StatusConflict, "duplicate_request", "Bu istek daha önce işlendi.", nil)
		return
	}
	h.logger.Error("refund request failed", slog.Any("error", err))
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
		if err := h.idempotency.CheckAndInsert(ctx, orgID, key, "refund:create"); err != nil {
			h.respondErr(w, err)
			return
		}
	}
	c, err := h.engine.Create(ctx, orgID, actor, fincase.CreateCaseInput{
		Kind:       fincase.KindRefund,
		BookingRef: req.BookingRef,
		Currency:   req.Currency,
	})
	if err != nil {
		if key != "" && h.idempotency != nil {
			if delErr := h.idempotency.Delete(ctx, orgID, key); delErr != nil {
				h.logger.Warn("rollback idempotency key", slog.Any("error", delErr))
			}
		}
		h.respondErr(w, err)
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
		h.respondErr(w, err)
		return
	}
	if view.Kind != string(fincase.KindRefund) {
		httpx.Error(w, http.StatusNotFound, "not_found", "İade talebi bulunamadı.", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	views, err := h.engine.ListViews(r.Context(), shared.OrgFromContext(r.Context()), fincase.KindRefund, limit, offset)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"refunds": views})
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
		h.respondErr(w, err)
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
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, itemsResponse{Removed: result.Count, Totals: result.Totals})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
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
	c, err := h.engine.Submit(ctx, shared.OrgFromContext(ctx), shared.ActorFromContext(ctx), caseID, req.Note)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fincase.BuildView(c, nil))
}

func (h *Handler) approveStep1(w http.ResponseWriter, r *http.Request) {
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	var req approveStep1Request
	if err := httpx.DecodeJSONOptional(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}
	ctx := r.Context()
	c, err := h.engine.ApproveStep1(ctx, shared.OrgFromContext(ctx), shared.ActorFromContext(ctx), caseID, req.ApprovedAmount)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fincase.BuildView(c, nil))
}

func (h *Handler) approveStep2(w http.ResponseWriter, r *http.Request) {
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
	c, err := h.engine.ApproveStep2(ctx, shared.OrgFromContext(ctx), shared.ActorFromContext(ctx), caseID, req.Note)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fincase.BuildView(c, nil))
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	caseID, ok := h.caseID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "validation_failed", "reason is required", nil)
		return
	}
	ctx := r.Context()
	c, err := h.engine.Reject(ctx, shared.OrgFromContext(ctx), shared.ActorFromContext(ctx), caseID, req.Reason)
	if err != nil {
		h.respondErr(w, err)
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
		h.respondErr(w, err)
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
		h.respondErr(w, err)
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
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fincase.BuildView(c, nil))
}

func (h *Handler) caseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_id", "refund case id must be a valid uuid", nil)
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
