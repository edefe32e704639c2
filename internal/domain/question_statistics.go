package domain

import (
	"time"

	"github.com/google/uuid"
)

// Review reasons attached to flagged questions.
const (
	ReviewReasonTooDifficult      = "too difficult"
	ReviewReasonTooEasy           = "too easy"
	ReviewReasonLowDiscrimination = "low discrimination"
)

// QuestionStatistics aggregates attempts on one question. Counters are
// updated per attempt; the derived metrics are filled in by recomputation and
// stay nil until enough attempts exist.
type QuestionStatistics struct {
	QuestionID                uuid.UUID            `json:"question_id"`
	TotalAttempts             int                  `json:"total_attempts"`
	CorrectAttempts           int                  `json:"correct_attempts"`
	TotalResponseTimeMs       int64                `json:"total_response_time_ms"`
	DistractorSelectionCounts map[RelationType]int `json:"distractor_selection_counts"`
	AbilitySumCorrect         float64              `json:"ability_sum_correct"`
	AbilitySumWrong           float64              `json:"ability_sum_wrong"`
	AbilityCountCorrect       int                  `json:"ability_count_correct"`
	AbilityCountWrong         int                  `json:"ability_count_wrong"`
	DifficultyIndex           *float64             `json:"difficulty_index,omitempty"`
	DiscriminationIndex       *float64             `json:"discrimination_index,omitempty"`
	QualityScore              *float64             `json:"quality_score,omitempty"`
	NeedsReview               bool                 `json:"needs_review"`
	ReviewReason              string               `json:"review_reason,omitempty"`
	NeedsRecalculation        bool                 `json:"needs_recalculation"`
	Version                   int64                `json:"version"`
	RecomputedAt              *time.Time           `json:"recomputed_at,omitempty"`
	UpdatedAt                 time.Time            `json:"updated_at"`
}

// NewQuestionStatistics returns an empty statistics row for a question.
func NewQuestionStatistics(questionID uuid.UUID, now time.Time) *QuestionStatistics {
	return &QuestionStatistics{
		QuestionID:                questionID,
		DistractorSelectionCounts: map[RelationType]int{},
		UpdatedAt:                 now.UTC(),
	}
}

// Clone returns a deep copy.
func (s QuestionStatistics) Clone() QuestionStatistics {
	out := s
	out.DistractorSelectionCounts = make(map[RelationType]int, len(s.DistractorSelectionCounts))
	for k, v := range s.DistractorSelectionCounts {
		out.DistractorSelectionCounts[k] = v
	}
	out.DifficultyIndex = cloneFloat(s.DifficultyIndex)
	out.DiscriminationIndex = cloneFloat(s.DiscriminationIndex)
	out.QualityScore = cloneFloat(s.QualityScore)
	if s.RecomputedAt != nil {
		t := *s.RecomputedAt
		out.RecomputedAt = &t
	}
	return out
}

// AverageResponseTimeMs is the mean response time across attempts.
func (s *QuestionStatistics) AverageResponseTimeMs() float64 {
	if s.TotalAttempts == 0 {
		return 0
	}
	return float64(s.TotalResponseTimeMs) / float64(s.TotalAttempts)
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
