package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/recovery-center-auth/app"
	"github.com/upb/recovery-center-auth/handlers"
	"github.com/upb/recovery-center-auth/middleware"
	"github.com/upb/recovery-center-auth/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	if timeout := deps.Config.Server.RequestTimeout; timeout > 0 {
		r.Use(chimiddleware.Timeout(timeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader, "WWW-Authenticate"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	// A nil *postgres.DB must not become a non-nil interface.
	var db handlers.DatabaseChecker
	if deps.DB != nil {
		db = deps.DB
	}
	var provider handlers.ProviderStatus
	if deps.Authenticator != nil {
		provider = deps.Authenticator
	}
	health := handlers.NewHealthHandler(db, provider, deps.Logger)
	sessions := handlers.NewSessionHandler(deps.Revocations, deps.Logger)

	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(deps.AuthMiddleware.OptionalAuth).Get("/session", sessions.HandleSession)

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/me", sessions.HandleMe)
			if deps.Revocations != nil {
				r.Post("/sessions/revoke", sessions.HandleRevoke)
			}
		})
	})

	return r
}
