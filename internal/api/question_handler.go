package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/api/shared"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
	"github.com/phrazzld/scry-verify/internal/service"
	"github.com/phrazzld/scry-verify/internal/service/verification"
)

// QuestionHandler serves questions, attempts on them and their statistics.
type QuestionHandler struct {
	selector      service.SelectorService
	verifications verification.Service
	quality       service.QualityService
	logger        *slog.Logger
}

// NewQuestionHandler creates a new QuestionHandler
func NewQuestionHandler(
	selector service.SelectorService,
	verifications verification.Service,
	quality service.QualityService,
	logger *slog.Logger,
) *QuestionHandler {
	if selector == nil || verifications == nil || quality == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("selector, verification and quality services cannot be nil for QuestionHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for QuestionHandler")
	}
	return &QuestionHandler{
		selector:      selector,
		verifications: verifications,
		quality:       quality,
		logger:        logger.With(slog.String("component", "question_handler")),
	}
}

// GetItemQuestion handles GET /items/{itemID}/question.
// It returns the best stored question for the item, generating one when none
// is usable. Responds 422 when the lexicon lacks data for any archetype and
// 424 when the item cannot be read.
func (h *QuestionHandler) GetItemQuestion(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	_, itemID, ok := handleLearnerIDAndPathUUID(w, r, "itemID", log)
	if !ok {
		return
	}

	question, err := h.selector.GetNextQuestion(r.Context(), itemID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get question")
		return
	}

	log.Debug("question selected",
		slog.String("item_id", itemID.String()),
		slog.String("question_id", question.ID.String()),
		slog.String("question_type", string(question.QuestionType)))
	shared.RespondWithJSON(w, r, http.StatusOK, questionToResponse(question))
}

// RecordAttempt handles POST /questions/{id}/attempts.
// Responds 409 when the attempt id was already recorded.
func (h *QuestionHandler) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	learnerID, questionID, ok := handleLearnerIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	var req RecordAttemptRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	attempt := verification.AttemptRequest{
		LearnerID:           learnerID,
		QuestionID:          questionID,
		SelectedOptionIndex: *req.SelectedOptionIndex,
		ResponseTimeMs:      *req.ResponseTimeMs,
		AbilityEstimate:     *req.AbilityEstimate,
		Context:             domain.ContextVerification,
	}
	if req.AttemptID != "" {
		attempt.AttemptID = uuid.MustParse(req.AttemptID)
	}
	if req.Context != "" {
		attempt.Context = domain.AttemptContext(req.Context)
	}

	result, err := h.verifications.RecordAttempt(r.Context(), attempt)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to record attempt")
		return
	}

	log.Debug("attempt recorded",
		slog.String("question_id", questionID.String()),
		slog.String("attempt_id", result.Attempt.ID.String()),
		slog.Bool("correct", result.Correct))
	shared.RespondWithJSON(w, r, http.StatusCreated, attemptToResponse(result))
}

// GetStatistics handles GET /questions/{id}/statistics.
func (h *QuestionHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	_, questionID, ok := handleLearnerIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	stats, err := h.quality.GetStatistics(r.Context(), questionID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get question statistics")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, statisticsToResponse(stats))
}
