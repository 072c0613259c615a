package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds the cross-cutting HTTP settings.
type RouterConfig struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, health *HealthChecker, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", health.HandleHealth)
	r.Get("/health/live", health.HandleLiveness)
	r.Get("/health/ready", health.HandleReadiness)

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", h.ListCategories)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Post("/generate", h.Generate)
				r.Post("/edit", h.ToggleEdit)
				r.Patch("/draft", h.EditTitle)
				r.Patch("/draft/sections/{index}", h.EditSection)
				r.Post("/save", h.Save)
				r.Post("/send", h.Send)
				r.Post("/copy", h.CopyLink)
				r.Get("/notifications", h.DrainNotifications)
			})
		})

		r.Route("/newsletters", func(r chi.Router) {
			r.Use(h.requireArchive)
			r.Get("/", h.ListNewsletters)
			r.Get("/lookup", h.LookupNewsletter)
			r.Get("/{newsletterID}", h.GetNewsletter)
		})
	})

	return r
}

// requireArchive answers 404 on archive routes when newsletters are saved
// through the base API rather than locally.
func (h *Handlers) requireArchive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.archive == nil {
			respondArchiveDisabled(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
