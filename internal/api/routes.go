package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.Health)
		r.Get("/site/config", h.SiteConfig)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/auth/login", h.Login)
			r.Post("/auth/logout", h.Logout)
			r.Get("/auth/verify", h.Verify)

			// Protected routes (session required)
			r.Group(func(r chi.Router) {
				r.Use(SessionMiddleware(h.guard))

				r.Get("/config", h.GetConfig)
				r.Put("/config", h.PutConfig)

				r.Route("/config/intents/{intent}", func(r chi.Router) {
					r.Use(IntentMiddleware)
					r.Get("/", h.GetIntent)
					r.Put("/", h.PutIntent)
				})
				r.Route("/config/{section}", func(r chi.Router) {
					r.Use(SectionMiddleware)
					r.Get("/", h.GetSection)
					r.Put("/", h.PutSection)
				})

				r.Get("/preview/stream", h.PreviewStream)
				r.Post("/preview/messages", h.PostPreviewMessage)
			})
		})
	})

	return r
}
