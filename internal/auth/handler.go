package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-travel/meridian/internal/platform/httpx"
)

// Handler exposes the token endpoint.
type Handler struct {
	svc      *Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler constructs the auth handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, validate: validator.New(), logger: logger}
}

// Mount registers auth routes.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/auth/token", h.issueToken)
}

type tokenRequest struct {
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "validation_failed", "client_id and client_secret are required", nil)
		return
	}
	token, err := h.svc.IssueToken(r.Context(), req.ClientID, req.ClientSecret)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httpx.Error(w, http.StatusUnauthorized, "invalid_credentials", "unknown client or wrong secret", nil)
			return
		}
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "Bearer"})
}
