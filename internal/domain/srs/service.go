package srs

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
)

// Service defines the interface for scheduling operations. It is the only
// place that dispatches on a card's persisted algorithm type.
type Service interface {
	// NewCard builds the initial state for a learner's first exposure to an
	// item. The card is due immediately.
	NewCard(
		learnerID, itemID uuid.UUID,
		algorithm domain.AlgorithmType,
		now time.Time,
	) (*domain.CardState, error)

	// Review applies a rating with the scheduler that owns the card and
	// stamps the review and due dates.
	Review(
		card *domain.CardState,
		rating domain.Rating,
		reviewedAt time.Time,
	) (*domain.CardState, error)

	// ConvertPayload rewrites a card's payload for another algorithm,
	// carrying the interval and an equivalent difficulty across.
	ConvertPayload(
		card *domain.CardState,
		target domain.AlgorithmType,
		now time.Time,
	) (*domain.CardState, error)

	// PredictRetention estimates recall probability at the given time.
	// It is only defined for model-based cards.
	PredictRetention(card *domain.CardState, at time.Time) (float64, error)
}

// defaultService is the standard implementation of the Service interface
type defaultService struct {
	ruleParams *RuleBasedParams
	rule       *RuleBasedScheduler
	model      *ModelBasedScheduler
	schedulers map[domain.AlgorithmType]Scheduler
}

// NewDefaultService creates a service with default parameters for both algorithms
func NewDefaultService() Service {
	return NewService(NewDefaultRuleBasedParams(), NewDefaultModelBasedParams())
}

// NewService creates a service with custom parameters
func NewService(ruleParams *RuleBasedParams, modelParams *ModelBasedParams) Service {
	if ruleParams == nil {
		ruleParams = NewDefaultRuleBasedParams()
	}
	rule := NewRuleBasedScheduler(ruleParams)
	model := NewModelBasedScheduler(modelParams)
	return &defaultService{
		ruleParams: ruleParams,
		rule:       rule,
		model:      model,
		schedulers: map[domain.AlgorithmType]Scheduler{
			rule.Type():  rule,
			model.Type(): model,
		},
	}
}

// NewCard implements Service.
func (s *defaultService) NewCard(
	learnerID, itemID uuid.UUID,
	algorithm domain.AlgorithmType,
	now time.Time,
) (*domain.CardState, error) {
	now = now.UTC()
	card := &domain.CardState{
		LearnerID:           learnerID,
		ItemID:              itemID,
		AlgorithmType:       algorithm,
		CurrentIntervalDays: 1,
		DueAt:               now,
		MasteryLevel:        domain.MasteryLearning,
		RecentOutcomes:      []bool{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	switch algorithm {
	case domain.AlgorithmRuleBased:
		card.RuleBased = &domain.RuleBasedPayload{EaseFactor: s.ruleParams.InitialEaseFactor}
	case domain.AlgorithmModelBased:
		card.ModelBased = &domain.ModelBasedPayload{Difficulty: s.model.params.InitialDifficulty}
	default:
		return nil, &UnknownAlgorithmTypeError{Type: algorithm}
	}

	if err := card.Validate(); err != nil {
		return nil, err
	}
	return card, nil
}

// Review implements Service.
func (s *defaultService) Review(
	card *domain.CardState,
	rating domain.Rating,
	reviewedAt time.Time,
) (*domain.CardState, error) {
	if card == nil {
		return nil, ErrNilCard
	}

	scheduler, ok := s.schedulers[card.AlgorithmType]
	if !ok {
		return nil, &UnknownAlgorithmTypeError{Type: card.AlgorithmType}
	}

	reviewedAt = reviewedAt.UTC()
	next, err := scheduler.Schedule(*card, rating, ElapsedDays(card, reviewedAt))
	if err != nil {
		return nil, err
	}

	next.LastReviewDate = &reviewedAt
	next.DueAt = reviewedAt.AddDate(0, 0, next.CurrentIntervalDays)
	next.UpdatedAt = reviewedAt

	return &next, nil
}

// ConvertPayload implements Service.
//
// Rule-based to model-based: stability becomes the current interval (zero for
// a card that was never reviewed, so the model treats it as new) and
// difficulty is the inverted position of the ease factor within its range.
// Model-based to rule-based is the inverse mapping; the streak is rebuilt
// from the trailing passes in the recent outcome window.
func (s *defaultService) ConvertPayload(
	card *domain.CardState,
	target domain.AlgorithmType,
	now time.Time,
) (*domain.CardState, error) {
	if card == nil {
		return nil, ErrNilCard
	}
	if _, ok := s.schedulers[target]; !ok {
		return nil, &UnknownAlgorithmTypeError{Type: target}
	}
	if _, ok := s.schedulers[card.AlgorithmType]; !ok {
		return nil, &UnknownAlgorithmTypeError{Type: card.AlgorithmType}
	}

	next := card.Clone()
	if card.AlgorithmType == target {
		return &next, nil
	}

	efRange := s.ruleParams.MaxEaseFactor - s.ruleParams.MinEaseFactor
	switch target {
	case domain.AlgorithmModelBased:
		difficulty := s.model.params.InitialDifficulty
		if efRange > 0 {
			difficulty = 1 - (card.RuleBased.EaseFactor-s.ruleParams.MinEaseFactor)/efRange
		}
		stability := 0.0
		if card.TotalReviews > 0 {
			stability = math.Max(float64(card.CurrentIntervalDays), s.model.params.MinStability)
		}
		next.ModelBased = &domain.ModelBasedPayload{
			Stability:  stability,
			Difficulty: clamp(difficulty, 0, 1),
		}
		next.RuleBased = nil
	case domain.AlgorithmRuleBased:
		ef := s.ruleParams.MaxEaseFactor - card.ModelBased.Difficulty*efRange
		next.RuleBased = &domain.RuleBasedPayload{
			EaseFactor:         clamp(ef, s.ruleParams.MinEaseFactor, s.ruleParams.MaxEaseFactor),
			ConsecutiveCorrect: trailingPasses(card.RecentOutcomes),
		}
		next.ModelBased = nil
	}

	next.AlgorithmType = target
	next.UpdatedAt = now.UTC()

	if err := next.Validate(); err != nil {
		return nil, err
	}
	return &next, nil
}

// PredictRetention implements Service.
func (s *defaultService) PredictRetention(card *domain.CardState, at time.Time) (float64, error) {
	if card == nil {
		return 0, ErrNilCard
	}
	if card.AlgorithmType != domain.AlgorithmModelBased || card.ModelBased == nil {
		return 0, ErrPayloadMismatch
	}
	return s.model.Retention(ElapsedDays(card, at), card.ModelBased.Stability), nil
}

// ElapsedDays returns the fractional days between the card's last review and
// at, or 0 for a card that was never reviewed.
func ElapsedDays(card *domain.CardState, at time.Time) float64 {
	if card.LastReviewDate == nil {
		return 0
	}
	return math.Max(at.Sub(*card.LastReviewDate).Hours()/24, 0)
}

func trailingPasses(outcomes []bool) int {
	n := 0
	for i := len(outcomes) - 1; i >= 0 && outcomes[i]; i-- {
		n++
	}
	return n
}
