package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tudu/server/internal/auth"
	"github.com/tudu/server/internal/http/handlers"
	"github.com/tudu/server/internal/middleware"
	"github.com/tudu/server/internal/repo"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(
	authHandler *handlers.AuthHandler,
	taskHandler *handlers.TaskHandler,
	jwtService *auth.JWTService,
	userRepo repo.UserRepo,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup/request-otp", authHandler.HandleSignupRequestOTP)
		r.Post("/signup/verify", authHandler.HandleSignupVerify)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/forgot-password/request-otp", authHandler.HandleForgotPasswordRequestOTP)
		r.Post("/forgot-password/verify", authHandler.HandleForgotPasswordVerify)
	})

	// Protected routes (require valid JWT)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtService, userRepo))

		r.Get("/me", authHandler.HandleMe)
		r.Put("/me/device-token", authHandler.HandleRegisterDevice)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", taskHandler.HandleCreate)
			r.Get("/", taskHandler.HandleList)
			r.Get("/{id}", taskHandler.HandleGet)
			r.Put("/{id}", taskHandler.HandleUpdate)
			r.Delete("/{id}", taskHandler.HandleDelete)
		})
	})

	return r
}
