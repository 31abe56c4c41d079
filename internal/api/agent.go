package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/calder-labs/persona/internal/api/handlers"
	mw "github.com/calder-labs/persona/internal/api/middleware"
	"github.com/calder-labs/persona/internal/service"
)

// NewAgentRouter builds the local agent's HTTP surface: the identity
// operations, meant to be bound to localhost for tool callers on the
// same machine. syncer may be nil when no relay is configured.
func NewAgentRouter(svc *service.IdentityService, syncer handlers.SyncTrigger, logger *zap.Logger) *chi.Mux {
	h := handlers.NewIdentityHandler(svc, syncer, logger)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/facts", func(r chi.Router) {
			r.Post("/", h.AddFact)
			r.Post("/validate", h.ValidateFact)
			r.Post("/remove", h.RemoveFact)
			r.Get("/projection", h.Projection)
			r.Get("/archival", h.ArchivalCandidates)
		})
		r.Route("/candidates", func(r chi.Router) {
			r.Get("/", h.PendingCandidates)
			r.Post("/", h.ProposeCandidates)
			r.Post("/accept", h.AcceptCandidate)
			r.Post("/reject", h.RejectCandidate)
		})
		r.Post("/insights", h.ProposeInsight)
		r.Get("/export", h.Export)
		r.Post("/import", h.Import)
		r.Post("/sync", h.TriggerSync)
	})

	return r
}
