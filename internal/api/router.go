package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lightauth/internal/vaultservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced. Without auth
// only loopback hosts and hosts are accepted.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *vaultservice.Service, authEnabled bool, token string, hosts []string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	if !authEnabled {
		r.Use(LocalOnly(hosts...))
	}
	r.Use(AuthMiddleware(authEnabled, token))
	r.Use(NoStore)

	// Session.
	r.Post("/unlock", h.Unlock)
	r.Post("/lock", h.Lock)
	r.Get("/status", h.Status)
	r.Post("/password", h.ChangePassword)

	// Accounts.
	r.Get("/accounts", h.ListAccounts)
	r.Post("/accounts", h.CreateAccount)
	r.Route("/accounts/{index}", func(r chi.Router) {
		r.Get("/", h.GetAccount)
		r.Put("/", h.UpdateAccount)
		r.Delete("/", h.DeleteAccount)
		r.Get("/code", h.GetCode)
		r.Get("/uri", h.GetURI)
		r.Get("/qr", h.GetQR)
	})
	r.Get("/codes", h.ListCodes)

	// Transfer.
	r.Post("/export", h.Export)
	r.Post("/import", h.Import)

	// Tools.
	r.Post("/uri/parse", h.ParseURI)
	r.Get("/secret", h.GenerateSecret)

	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
	r.Get("/audit", h.Audit)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
