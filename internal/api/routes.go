package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/scry-verify/internal/api/middleware"
)

// Handlers groups the learner API handlers.
type Handlers struct {
	Verifications *VerificationHandler
	Questions     *QuestionHandler
	Learners      *LearnerHandler
}

// Routes returns a function that registers the learner API on a router.
// Every route requires a learner access token. Mount it with
// r.Route("/api", api.Routes(authMiddleware, handlers)).
func Routes(authMiddleware *middleware.AuthMiddleware, h Handlers) func(chi.Router) {
	return func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		// Verification loop
		r.Post("/verifications", h.Verifications.StartVerification)
		r.Get("/verifications/due", h.Verifications.GetDueCard)
		r.Get("/verifications/next", h.Verifications.GetNextVerification)

		// Questions
		r.Get("/items/{itemID}/question", h.Questions.GetItemQuestion)
		r.Post("/questions/{id}/attempts", h.Questions.RecordAttempt)
		r.Get("/questions/{id}/statistics", h.Questions.GetStatistics)

		// Algorithm assignment
		r.Get("/learners/me/algorithm", h.Learners.GetAlgorithm)
		r.Post("/learners/me/algorithm/migrate", h.Learners.Migrate)
	}
}
