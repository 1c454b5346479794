package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-travel/meridian/internal/auth"
	"github.com/meridian-travel/meridian/internal/ledger"
	"github.com/meridian-travel/meridian/internal/platform/httpx"
	"github.com/meridian-travel/meridian/internal/refund"
	"github.com/meridian-travel/meridian/internal/settlement"
	"github.com/meridian-travel/meridian/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	AuthService       *auth.Service
	AuthHandler       *auth.Handler
	LedgerHandler     *ledger.Handler
	SettlementHandler *settlement.Handler
	RefundHandler     *refund.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	params.AuthHandler.Mount(r)

	r.Group(func(r chi.Router) {
		r.Use(params.AuthService.Middleware)
		params.LedgerHandler.MountRoutes(r)
		params.SettlementHandler.MountRoutes(r)
		params.RefundHandler.MountRoutes(r)
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
