package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures all API routes
func SetupRoutes(h *Handlers, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	if am := opts.Auth; am != nil {
		r.Route("/auth", func(r chi.Router) {
			r.Get("/login", am.HandleLogin)
			r.Get("/callback", am.HandleCallback)
			r.Get("/logout", am.HandleLogout)
			r.Get("/user", am.HandleUserInfo)
		})
	}

	r.Route("/v1", func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth.RequireAuth)
		}
		r.Route("/serving", func(r chi.Router) {
			r.Get("/", h.GetStatus)
			r.Post("/start", h.StartServing)
			r.Post("/stop", h.StopServing)
			r.Post("/serve", h.ServeNow)
		})
		r.Post("/events", h.RecordEvent)
		r.Get("/events", h.GetAdsHistory)
		r.Get("/segments", h.GetSegments)
		if opts.Preferences != nil {
			r.Route("/preferences", func(r chi.Router) {
				r.Get("/", h.GetPreferences)
				r.Post("/opt-out", h.ToggleOptOut)
				r.Post("/opt-in", h.ToggleOptIn)
				r.Post("/flag", h.ToggleFlagged)
			})
		}
	})

	return r
}
