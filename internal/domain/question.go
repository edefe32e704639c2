package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QuestionType names a question archetype.
type QuestionType string

// Question archetypes
const (
	QuestionMeaning        QuestionType = "meaning"
	QuestionUsage          QuestionType = "usage"
	QuestionDiscrimination QuestionType = "discrimination"
)

// Valid reports whether t is a known archetype.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMeaning, QuestionUsage, QuestionDiscrimination:
		return true
	}
	return false
}

// Question validation errors
var (
	ErrQuestionIDEmpty          = errors.New("question ID cannot be empty")
	ErrQuestionTargetEmpty      = errors.New("question target item ID cannot be empty")
	ErrInvalidQuestionType      = errors.New("invalid question type")
	ErrQuestionPromptEmpty      = errors.New("question prompt cannot be empty")
	ErrQuestionContextEmpty     = errors.New("question context sentence cannot be empty")
	ErrQuestionExplanationEmpty = errors.New("question explanation cannot be empty")
	ErrQuestionTooFewOptions    = errors.New("question needs at least two options")
	ErrQuestionCorrectOption    = errors.New("question must have exactly one correct option at the correct index")
	ErrQuestionTargetAsWrong    = errors.New("target item cannot appear as a wrong option")
)

// Option is one answer choice. SourceItemID is the lexical item the text was
// taken from; SourceRelation says how that item relates to the target.
type Option struct {
	Text           string       `json:"text"`
	IsCorrect      bool         `json:"is_correct"`
	SourceItemID   uuid.UUID    `json:"source_item_id"`
	SourceRelation RelationType `json:"source_relation"`
}

// Question is an immutable multiple-choice question about one lexical item.
//
// ContextSentence is the example sentence for meaning questions and the
// redacted example sentence for discrimination questions. Usage questions
// offer example sentences as options, so their context is a sentence stating
// the meaning being tested.
type Question struct {
	ID              uuid.UUID    `json:"id"`
	TargetItemID    uuid.UUID    `json:"target_item_id"`
	QuestionType    QuestionType `json:"question_type"`
	Prompt          string       `json:"prompt"`
	ContextSentence string       `json:"context_sentence"`
	Options         []Option     `json:"options"`
	CorrectIndex    int          `json:"correct_index"`
	Explanation     string       `json:"explanation"`
	Fingerprint     string       `json:"fingerprint"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Validate checks the question invariants.
func (q *Question) Validate() error {
	if q.ID == uuid.Nil {
		return ErrQuestionIDEmpty
	}
	if q.TargetItemID == uuid.Nil {
		return ErrQuestionTargetEmpty
	}
	if !q.QuestionType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidQuestionType, q.QuestionType)
	}
	if strings.TrimSpace(q.Prompt) == "" {
		return ErrQuestionPromptEmpty
	}
	if strings.TrimSpace(q.ContextSentence) == "" {
		return ErrQuestionContextEmpty
	}
	if strings.TrimSpace(q.Explanation) == "" {
		return ErrQuestionExplanationEmpty
	}
	if len(q.Options) < 2 {
		return ErrQuestionTooFewOptions
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) || !q.Options[q.CorrectIndex].IsCorrect {
		return ErrQuestionCorrectOption
	}

	correct := 0
	for i, o := range q.Options {
		if o.IsCorrect {
			correct++
			continue
		}
		if o.SourceItemID == q.TargetItemID {
			return fmt.Errorf("%w: option %d", ErrQuestionTargetAsWrong, i)
		}
	}
	if correct != 1 {
		return ErrQuestionCorrectOption
	}

	return nil
}

// IsCorrect reports whether the selected option index is the right answer.
func (q *Question) IsCorrect(selected int) bool {
	return selected == q.CorrectIndex
}

// SelectedRelation returns the relation label of the chosen option, used as
// the key of the distractor selection counters.
func (q *Question) SelectedRelation(selected int) RelationType {
	if selected < 0 || selected >= len(q.Options) {
		return ""
	}
	o := q.Options[selected]
	if o.IsCorrect {
		return RelationTarget
	}
	return o.SourceRelation
}
