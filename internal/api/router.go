// Package api wires the HTTP router: global middleware, public health
// endpoints, and the authenticated /api routes.
package api

import (
	"net/http"

	"github.com/agentdesk/agentdesk/internal/api/handlers"
	"github.com/agentdesk/agentdesk/internal/api/middleware"
	"github.com/agentdesk/agentdesk/internal/auth"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(h *handlers.Handlers, chain *auth.ProviderChain) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.NewAuthMiddleware(chain).Handler)

	// Public
	r.Get("/health", h.Health)
	r.Get("/version", h.GetVersion)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Get("/me", h.Me)
		})

		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", h.ListWorkflows)
			r.Post("/", h.CreateWorkflow)
			r.Route("/{workflowID}", func(r chi.Router) {
				r.Get("/", h.GetWorkflow)
				r.Put("/", h.UpdateWorkflow)
				r.Delete("/", h.DeleteWorkflow)
				r.Post("/execute", h.ExecuteWorkflow)
				r.Get("/executions", h.ListWorkflowExecutions)
			})
		})

		r.Route("/executions/{executionID}", func(r chi.Router) {
			r.Get("/", h.GetExecution)
			r.Get("/logs", h.GetExecutionLogs)
			r.Post("/cancel", h.CancelExecution)
		})

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", h.ListAgents)
			r.Post("/execute", h.ExecuteAgent)
			r.Post("/rate", h.RateExecution)
			r.Post("/compare-models", h.CompareModels)
			r.Get("/metrics", h.GetAgentMetrics)
			r.Get("/my-stats", h.GetMyStats)
			r.Get("/recent-executions", h.GetRecentExecutions)
		})

		r.Route("/models", func(r chi.Router) {
			r.Get("/available", h.GetAvailableModels)
		})

		r.Route("/documents", func(r chi.Router) {
			r.Post("/upload", h.UploadDocuments)
			r.Get("/my-documents", h.ListMyDocuments)
			r.Post("/query", h.QueryDocuments)
			r.Delete("/{documentID}", h.DeleteDocument)
		})

		r.Route("/api-keys", func(r chi.Router) {
			r.Get("/", h.ListAPIKeys)
			r.Post("/", h.CreateAPIKey)
			r.Patch("/{keyID}/deactivate", h.DeactivateAPIKey)
			r.Delete("/{keyID}", h.DeleteAPIKey)
		})
	})

	return r
}
