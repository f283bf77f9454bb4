package api

import (
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/go-chi/chi/v5"

	"github.com/classward/sessiond/internal/api/handler"
	"github.com/classward/sessiond/internal/api/middleware"
	"github.com/classward/sessiond/internal/session"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Orchestrator     *session.Orchestrator
	DBPinger         handler.Pinger
	CachePinger      handler.Pinger
	Version          string
	ServiceTokenHash string
}

// NewRouter creates and configures a Chi router with all middleware and routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.Logger)

	healthHandler := handler.NewHealthHandler(deps.DBPinger, deps.CachePinger, deps.Version)
	r.Get("/health", healthHandler.ServeHTTP)

	sessionHandler := handler.NewSessionHandler(deps.Orchestrator)
	r.Route("/session", func(r chi.Router) {
		r.Use(middleware.ServiceToken(deps.ServiceTokenHash))

		r.Get("/principal", sessionHandler.GetPrincipal)
		r.Get("/actor", sessionHandler.GetActor)
		r.Get("/roles/{role}", sessionHandler.HasRole)
		r.Get("/remaining", sessionHandler.Remaining)
		r.Post("/signin", sessionHandler.SignIn)
		r.Post("/signout", sessionHandler.SignOut)
		r.Post("/refresh", sessionHandler.Refresh)
		r.Post("/activity", sessionHandler.Activity)
		r.Post("/foreground", sessionHandler.Foreground)
		r.Post("/emulation", sessionHandler.StartEmulation)
		r.Delete("/emulation", sessionHandler.StopEmulation)
	})

	return r
}
