package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/scry-verify/internal/api"
	apiMiddleware "github.com/phrazzld/scry-verify/internal/api/middleware"
	"github.com/phrazzld/scry-verify/internal/redact"
)

const healthTimeout = 2 * time.Second

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)
	r.Route("/api", api.Routes(authMiddleware, api.Handlers{
		Verifications: api.NewVerificationHandler(app.verifications, app.selector, app.logger),
		Questions:     api.NewQuestionHandler(app.selector, app.verifications, app.quality, app.logger),
		Learners:      api.NewLearnerHandler(app.assignments, app.logger),
	}))

	r.Get("/health", app.handleHealth)

	return r
}

// handleHealth reports 200 when the learner storage answers and 503 otherwise.
func (app *application) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status, body := http.StatusOK, "OK"
	if err := app.backend.ping(ctx); err != nil {
		app.logger.Warn("Health check failed", "error", redact.Error(err))
		status, body = http.StatusServiceUnavailable, "UNAVAILABLE"
	}

	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		app.logger.Error("Failed to write health check response", "error", err)
	}
}
