// Package api provides HTTP API server components.
package api

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/recallkit/recall/config"
	"github.com/recallkit/recall/pkg/api/handlers"
	"github.com/recallkit/recall/pkg/api/middleware"
	"github.com/recallkit/recall/pkg/logger"

	_ "github.com/recallkit/recall/docs/swagger" // Import generated docs
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Jobs handles the scheduled job triggers.
	Jobs *handlers.JobsHandler

	// Chats handles chat creation, message appends and manual finalize.
	Chats *handlers.ChatHandler

	// Memory handles search, context and summary reads.
	Memory *handlers.MemoryHandler

	// Health handles health check endpoints.
	Health *handlers.HealthHandler

	// Events streams memory events over websockets.
	Events *handlers.WebSocketHandler

	// Metrics is the optional metrics recorder.
	Metrics middleware.MetricsRecorder

	// JobToken returns the current shared secret guarding /api/v1. It is
	// read per request so a reloaded token applies immediately.
	JobToken func() string
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	if h.Metrics != nil {
		r.Use(middleware.Metrics(h.Metrics))
	}
	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	}

	r.Use(middleware.CORS(&cfg.Server.CORS))
	r.Use(middleware.Timeout(cfg.Server.HTTP.RequestTimeout))

	RegisterRoutes(r, h)

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, h *Handlers) {
	token := h.JobToken
	if token == nil {
		token = func() string { return "" }
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.TokenAuth(token))

		if h.Jobs != nil {
			r.Post("/jobs/finalize-idle", h.Jobs.FinalizeIdle)
			r.Post("/jobs/compress-memory", h.Jobs.CompressMemory)
		}

		r.Route("/users/{userID}", func(r chi.Router) {
			if h.Chats != nil {
				r.Post("/chats", h.Chats.CreateChat)
				r.Post("/chats/{chatID}/messages", h.Chats.AppendMessages)
				r.Post("/chats/{chatID}/finalize", h.Chats.FinalizeChat)
			}

			if h.Memory != nil {
				r.Route("/memory", func(r chi.Router) {
					r.Delete("/", h.Memory.DeleteMemory)
					r.Get("/search", h.Memory.Search)
					r.Get("/context", h.Memory.Context)
					r.Get("/summary", h.Memory.Summary)
					r.Get("/summary/versions", h.Memory.SummaryVersions)
					r.Get("/distilled", h.Memory.Distilled)
					r.Get("/distilled/search", h.Memory.SearchDistilled)
				})
			}
		})

		if h.Events != nil {
			r.Get("/events", h.Events.ServeHTTP)
		}
	})

	if h.Health != nil {
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/status", h.Health.Status)
	}

	r.Get("/swagger/*", httpSwagger.WrapHandler)
}
