package api

import (
	"time"

	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/service"
	"github.com/phrazzld/scry-verify/internal/service/verification"
)

// StartVerificationRequest defines the payload for POST /verifications.
type StartVerificationRequest struct {
	ItemID string `json:"item_id" validate:"required,uuid"`
}

// RecordAttemptRequest defines the payload for POST /questions/{id}/attempts.
// AttemptID is optional; clients that retry send the same id so the attempt
// is counted once.
type RecordAttemptRequest struct {
	AttemptID           string   `json:"attempt_id,omitempty"    validate:"omitempty,uuid"`
	SelectedOptionIndex *int     `json:"selected_option_index"   validate:"required,gte=0"`
	ResponseTimeMs      *int     `json:"response_time_ms"        validate:"required,gte=0"`
	AbilityEstimate     *float64 `json:"ability_estimate"        validate:"required,gte=0,lte=1"`
	Context             string   `json:"context,omitempty"       validate:"omitempty,oneof=verification practice assessment"`
}

// MigrateRequest defines the payload for POST /learners/me/algorithm/migrate.
type MigrateRequest struct {
	Consent bool `json:"consent"`
}

// CardResponse is the learner-facing view of a card.
type CardResponse struct {
	ItemID                string     `json:"item_id"`
	AlgorithmType         string     `json:"algorithm_type"`
	MasteryLevel          string     `json:"mastery_level"`
	IsLeech               bool       `json:"is_leech"`
	CurrentIntervalDays   int        `json:"current_interval_days"`
	DueAt                 time.Time  `json:"due_at"`
	LastReviewDate        *time.Time `json:"last_review_date,omitempty"`
	TotalReviews          int        `json:"total_reviews"`
	TotalCorrect          int        `json:"total_correct"`
	AverageResponseTimeMs float64    `json:"average_response_time_ms"`
}

// OptionResponse is one answer option. Correctness is never included.
type OptionResponse struct {
	Text string `json:"text"`
}

// QuestionResponse is the learner-facing view of a question. It omits the
// correct index, option correctness, the explanation and the fingerprint.
type QuestionResponse struct {
	ID              string           `json:"id"`
	TargetItemID    string           `json:"target_item_id"`
	QuestionType    string           `json:"question_type"`
	Prompt          string           `json:"prompt"`
	ContextSentence string           `json:"context_sentence"`
	Options         []OptionResponse `json:"options"`
}

// VerificationResponse pairs a due card with the question to ask for it.
type VerificationResponse struct {
	Card     CardResponse     `json:"card"`
	Question QuestionResponse `json:"question"`
}

// AttemptResponse is returned after an attempt is recorded.
type AttemptResponse struct {
	AttemptID   string       `json:"attempt_id"`
	Correct     bool         `json:"correct"`
	Rating      string       `json:"rating"`
	Explanation string       `json:"explanation,omitempty"`
	Card        CardResponse `json:"card"`
}

// StatisticsResponse is the read-only view of a question's statistics.
type StatisticsResponse struct {
	QuestionID                string         `json:"question_id"`
	TotalAttempts             int            `json:"total_attempts"`
	CorrectAttempts           int            `json:"correct_attempts"`
	AverageResponseTimeMs     float64        `json:"average_response_time_ms"`
	DistractorSelectionCounts map[string]int `json:"distractor_selection_counts"`
	DifficultyIndex           *float64       `json:"difficulty_index"`
	DiscriminationIndex       *float64       `json:"discrimination_index"`
	QualityScore              *float64       `json:"quality_score"`
	NeedsReview               bool           `json:"needs_review"`
	ReviewReason              string         `json:"review_reason,omitempty"`
	RecomputedAt              *time.Time     `json:"recomputed_at,omitempty"`
}

// AssignmentResponse is the learner's algorithm assignment.
type AssignmentResponse struct {
	Algorithm            string     `json:"algorithm"`
	AssignmentReason     string     `json:"assignment_reason"`
	AssignedAt           time.Time  `json:"assigned_at"`
	RuleBasedAttempts    int        `json:"rule_based_attempts"`
	EligibleForMigration bool       `json:"eligible_for_migration"`
	MigratedAt           *time.Time `json:"migrated_at,omitempty"`
}

func cardToResponse(card *domain.CardState) CardResponse {
	return CardResponse{
		ItemID:                card.ItemID.String(),
		AlgorithmType:         string(card.AlgorithmType),
		MasteryLevel:          string(card.MasteryLevel),
		IsLeech:               card.IsLeech,
		CurrentIntervalDays:   card.CurrentIntervalDays,
		DueAt:                 card.DueAt,
		LastReviewDate:        card.LastReviewDate,
		TotalReviews:          card.TotalReviews,
		TotalCorrect:          card.TotalCorrect,
		AverageResponseTimeMs: card.AverageResponseTimeMs,
	}
}

func questionToResponse(q *domain.Question) QuestionResponse {
	options := make([]OptionResponse, len(q.Options))
	for i, opt := range q.Options {
		options[i] = OptionResponse{Text: opt.Text}
	}
	return QuestionResponse{
		ID:              q.ID.String(),
		TargetItemID:    q.TargetItemID.String(),
		QuestionType:    string(q.QuestionType),
		Prompt:          q.Prompt,
		ContextSentence: q.ContextSentence,
		Options:         options,
	}
}

func verificationToResponse(v *service.Verification) VerificationResponse {
	return VerificationResponse{
		Card:     cardToResponse(v.Card),
		Question: questionToResponse(v.Question),
	}
}

func attemptToResponse(result *verification.AttemptResult) AttemptResponse {
	return AttemptResponse{
		AttemptID:   result.Attempt.ID.String(),
		Correct:     result.Correct,
		Rating:      result.Attempt.Rating.String(),
		Explanation: result.Explanation,
		Card:        cardToResponse(result.Card),
	}
}

func statisticsToResponse(stats *domain.QuestionStatistics) StatisticsResponse {
	counts := make(map[string]int, len(stats.DistractorSelectionCounts))
	for relation, n := range stats.DistractorSelectionCounts {
		counts[string(relation)] = n
	}
	return StatisticsResponse{
		QuestionID:                stats.QuestionID.String(),
		TotalAttempts:             stats.TotalAttempts,
		CorrectAttempts:           stats.CorrectAttempts,
		AverageResponseTimeMs:     stats.AverageResponseTimeMs(),
		DistractorSelectionCounts: counts,
		DifficultyIndex:           stats.DifficultyIndex,
		DiscriminationIndex:       stats.DiscriminationIndex,
		QualityScore:              stats.QualityScore,
		NeedsReview:               stats.NeedsReview,
		ReviewReason:              stats.ReviewReason,
		RecomputedAt:              stats.RecomputedAt,
	}
}

func assignmentToResponse(a *domain.AlgorithmAssignment) AssignmentResponse {
	return AssignmentResponse{
		Algorithm:            string(a.Algorithm),
		AssignmentReason:     string(a.AssignmentReason),
		AssignedAt:           a.AssignedAt,
		RuleBasedAttempts:    a.RuleBasedAttempts,
		EligibleForMigration: a.EligibleForMigration,
		MigratedAt:           a.MigratedAt,
	}
}
