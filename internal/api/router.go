package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/zensync/internal/ledger"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// history may be nil when the ledger is disabled.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc SyncService, history ledger.Reader, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, history)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/state", h.State)
	r.Get("/candidates", h.Candidates)
	r.Get("/preview", h.Preview)
	r.Get("/history", h.History)
	r.Post("/sync", h.Sync)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
