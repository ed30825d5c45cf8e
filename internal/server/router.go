package server

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/strom/internal/api"
	"github.com/cloo-solutions/strom/internal/api/handlers"
	"github.com/cloo-solutions/strom/internal/api/middleware"
	"github.com/cloo-solutions/strom/internal/logger"
	"github.com/go-chi/chi/v5"
)

const (
	defaultMaxUploadBodyBytes int64 = 5 * 1024 * 1024
	maxJSONBodyBytes          int64 = 1 << 20
)

type RouterConfig struct {
	Logger              *logger.Logger
	ConversationHandler *handlers.ConversationHandler
	IngestionHandler    *handlers.IngestionHandler
	// HealthCheck, when set, reports backing store reachability on /health.
	HealthCheck func(ctx context.Context) error
	// MaxUploadBodyBytes caps multipart bodies; JSON bodies are capped at 1MB.
	MaxUploadBodyBytes int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	uploadLimit := cfg.MaxUploadBodyBytes
	if uploadLimit <= 0 {
		uploadLimit = defaultMaxUploadBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Logger))
	r.Use(middleware.MaxBodyBytes(middleware.BodyLimits{Default: maxJSONBodyBytes, Multipart: uploadLimit}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.HealthCheck != nil {
			if err := cfg.HealthCheck(r.Context()); err != nil {
				api.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/agent/conversation", cfg.ConversationHandler.Converse)

	r.Route("/projects", func(r chi.Router) {
		r.Post("/create", cfg.IngestionHandler.Create)
		r.Get("/jobs/{id}", cfg.IngestionHandler.GetJob)
	})

	return r
}
