package generation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
)

// Common errors returned by the generation package
var (
	// ErrInsufficientData is matched by every InsufficientDataError.
	ErrInsufficientData = errors.New("insufficient data to build question")

	// ErrContentUnavailable is matched by every ContentUnavailableError.
	ErrContentUnavailable = errors.New("lexical content unavailable")

	// ErrInvalidQuestionType is returned for an unknown archetype.
	ErrInvalidQuestionType = domain.ErrInvalidQuestionType

	// ErrNoQuestionTypes is returned when a fallback order is empty.
	ErrNoQuestionTypes = errors.New("no question types to try")
)

// InsufficientDataError reports that a question could not be built because
// the filtered distractor pool, or the target itself, lacks the data the
// archetype needs. Callers fall back to another archetype or skip the item.
type InsufficientDataError struct {
	ItemID       uuid.UUID
	QuestionType domain.QuestionType
	Found        int
	Required     int
	Reason       string
}

// Error implements the error interface.
func (e *InsufficientDataError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("insufficient data for %s question on item %s: %s",
			e.QuestionType, e.ItemID, e.Reason)
	}
	return fmt.Sprintf("insufficient data for %s question on item %s: found %d distractors, need %d",
		e.QuestionType, e.ItemID, e.Found, e.Required)
}

// Is makes errors.Is(err, ErrInsufficientData) match.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// ContentUnavailableError reports that the target item could not be read
// from the lexical store.
type ContentUnavailableError struct {
	ItemID uuid.UUID
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ContentUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("content unavailable for item %s: %s: %v", e.ItemID, e.Reason, e.Err)
	}
	return fmt.Sprintf("content unavailable for item %s: %s", e.ItemID, e.Reason)
}

// Unwrap returns the underlying lexical store error.
func (e *ContentUnavailableError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrContentUnavailable) match.
func (e *ContentUnavailableError) Is(target error) bool {
	return target == ErrContentUnavailable
}
