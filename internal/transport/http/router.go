package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mailverify-auth/internal/application/auth"
	"github.com/mailverify-auth/internal/config"
	"github.com/mailverify-auth/internal/transport/http/handler"
	appmiddleware "github.com/mailverify-auth/internal/transport/http/middleware"
)

// Deps holds the services the router exposes.
type Deps struct {
	AuthService auth.Service
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authH := handler.NewAuthHandler(deps.AuthService)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handler.Health)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/request-verification", authH.RequestVerification)
			r.Post("/verify-code", authH.VerifyCode)
			r.Post("/signup", authH.Signup)
			r.Post("/login", authH.Login)

			r.With(appmiddleware.Auth(deps.AuthService)).Get("/me", authH.Me)
		})
	})

	return r
}
