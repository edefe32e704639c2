package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/scry-verify/internal/api/shared"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
	"github.com/phrazzld/scry-verify/internal/service"
)

// LearnerHandler serves the learner's algorithm assignment.
type LearnerHandler struct {
	assignments service.AssignmentService
	logger      *slog.Logger
}

// NewLearnerHandler creates a new LearnerHandler
func NewLearnerHandler(assignments service.AssignmentService, logger *slog.Logger) *LearnerHandler {
	if assignments == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("assignment service cannot be nil for LearnerHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for LearnerHandler")
	}
	return &LearnerHandler{
		assignments: assignments,
		logger:      logger.With(slog.String("component", "learner_handler")),
	}
}

// GetAlgorithm handles GET /learners/me/algorithm.
// A learner without an assignment is assigned one.
func (h *LearnerHandler) GetAlgorithm(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	learnerID, ok := requireLearnerID(w, r, log)
	if !ok {
		return
	}

	assignment, err := h.assignments.EnsureAssignment(r.Context(), learnerID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get algorithm assignment")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, assignmentToResponse(assignment))
}

// Migrate handles POST /learners/me/algorithm/migrate.
// Responds 400 without consent and 409 when the learner is not eligible or
// already migrated.
func (h *LearnerHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	learnerID, ok := requireLearnerID(w, r, log)
	if !ok {
		return
	}

	var req MigrateRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	assignment, err := h.assignments.Migrate(r.Context(), learnerID, req.Consent)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to migrate learner")
		return
	}

	log.Info("learner migrated to model-based scheduling")
	shared.RespondWithJSON(w, r, http.StatusOK, assignmentToResponse(assignment))
}
