package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/roboplan/roboplan/internal/api/handlers"
	"github.com/roboplan/roboplan/internal/api/middleware"
	"github.com/roboplan/roboplan/internal/config"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/querytypes", h.ListQueryTypes)
		r.Get("/runs", h.ListRuns)
		r.Get("/backend/health", h.BackendHealth)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Post("/", h.CreateSession)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Delete("/", h.DeleteSession)

				// Conversation
				r.Post("/image", h.SetImage)
				r.Post("/ask", h.Ask)
				r.Get("/history", h.History)
				r.Post("/clear", h.ClearConversation)
				r.Post("/settings", h.UpdateSettings)
				r.Post("/save", h.SaveConversation)
				r.Post("/load", h.LoadConversation)

				// Planning
				r.Post("/goal", h.SetGoal)
				r.Post("/tasks/completed", h.AddCompletedTask)
				r.Post("/tasks/current", h.SetCurrentTask)
				r.Get("/status", h.PlanningStatus)
				r.Post("/reset", h.ResetPlanning)
				r.Post("/query", h.PlanningQuery)
				r.Post("/pipeline", h.RunPipeline)
			})
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "roboplan",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "roboplan",
		})
	}
}
