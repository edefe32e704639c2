package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/api/shared"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
	"github.com/phrazzld/scry-verify/internal/service"
	"github.com/phrazzld/scry-verify/internal/service/verification"
)

// VerificationHandler serves the verification loop: starting verification
// of an item and choosing what to ask next.
type VerificationHandler struct {
	verifications verification.Service
	selector      service.SelectorService
	logger        *slog.Logger
}

// NewVerificationHandler creates a new VerificationHandler
func NewVerificationHandler(
	verifications verification.Service,
	selector service.SelectorService,
	logger *slog.Logger,
) *VerificationHandler {
	if verifications == nil || selector == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("verification service and selector cannot be nil for VerificationHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for VerificationHandler")
	}
	return &VerificationHandler{
		verifications: verifications,
		selector:      selector,
		logger:        logger.With(slog.String("component", "verification_handler")),
	}
}

// StartVerification handles POST /verifications.
// It returns the learner's card for the item, creating it on first exposure.
func (h *VerificationHandler) StartVerification(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	learnerID, ok := requireLearnerID(w, r, log)
	if !ok {
		return
	}

	var req StartVerificationRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}
	itemID := uuid.MustParse(req.ItemID)

	card, err := h.verifications.StartVerification(r.Context(), learnerID, itemID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to start verification")
		return
	}

	log.Debug("verification started",
		slog.String("item_id", itemID.String()),
		slog.String("algorithm_type", string(card.AlgorithmType)))
	shared.RespondWithJSON(w, r, http.StatusCreated, cardToResponse(card))
}

// GetDueCard handles GET /verifications/due.
// Items listed in the exclude query parameter are skipped. Responds 204 when
// nothing is due.
func (h *VerificationHandler) GetDueCard(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	learnerID, ok := requireLearnerID(w, r, log)
	if !ok {
		return
	}
	session, ok := h.session(w, r, log)
	if !ok {
		return
	}

	card, err := h.selector.GetDueCard(r.Context(), learnerID, session)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get due card")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, cardToResponse(card))
}

// GetNextVerification handles GET /verifications/next.
// It returns the next due card together with the question to ask. Responds
// 204 when no due card has a usable question.
func (h *VerificationHandler) GetNextVerification(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	learnerID, ok := requireLearnerID(w, r, log)
	if !ok {
		return
	}
	session, ok := h.session(w, r, log)
	if !ok {
		return
	}

	next, err := h.selector.NextVerification(r.Context(), learnerID, session)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get next verification")
		return
	}

	log.Debug("next verification selected",
		slog.String("item_id", next.Card.ItemID.String()),
		slog.String("question_id", next.Question.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, verificationToResponse(next))
}

func (h *VerificationHandler) session(w http.ResponseWriter, r *http.Request, log *slog.Logger) (*service.Session, bool) {
	excluded, err := parseExcludeParam(r)
	if err != nil {
		log.Warn("invalid exclude parameter", slog.String("error", err.Error()))
		HandleAPIError(w, r, err, "")
		return nil, false
	}
	return service.NewSession(excluded...), true
}
