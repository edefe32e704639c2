package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/generation"
	"github.com/phrazzld/scry-verify/internal/service"
	"github.com/phrazzld/scry-verify/internal/service/auth"
	"github.com/phrazzld/scry-verify/internal/service/verification"
	"github.com/phrazzld/scry-verify/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrInvalidSubject),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	// Question building errors are checked before not-found: a missing
	// lexical item surfaces as content unavailable.
	case errors.Is(err, generation.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, generation.ErrContentUnavailable):
		return http.StatusFailedDependency

	// Not found errors
	case errors.Is(err, verification.ErrQuestionNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, verification.ErrAttemptAlreadyRecorded),
		errors.Is(err, service.ErrNotEligible),
		errors.Is(err, service.ErrAlreadyMigrated),
		errors.Is(err, service.ErrAlreadyAssigned):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, verification.ErrInvalidAttempt),
		errors.Is(err, service.ErrConsentRequired),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID):
		return http.StatusBadRequest

	// Special cases
	case errors.Is(err, service.ErrNoCardsDue):
		return http.StatusNoContent

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrInvalidSubject),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"
	case errors.Is(err, domain.ErrUnauthorized):
		return "Learner ID not found or invalid"

	// Question building errors
	case errors.Is(err, generation.ErrInsufficientData):
		return "Not enough lexical data to build a question for this item"
	case errors.Is(err, generation.ErrContentUnavailable):
		return "Lexical content is unavailable"

	// Not found errors
	case errors.Is(err, verification.ErrQuestionNotFound),
		errors.Is(err, store.ErrQuestionNotFound):
		return "Question not found"
	case errors.Is(err, store.ErrQuestionStatisticsNotFound):
		return "Question statistics not found"
	case errors.Is(err, store.ErrAssignmentNotFound):
		return "Learner has no algorithm assignment"
	case errors.Is(err, store.ErrCardStateNotFound):
		return "Card not found"
	case errors.Is(err, store.ErrLexicalItemNotFound):
		return "Item not found"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	// Conflict errors
	case errors.Is(err, verification.ErrAttemptAlreadyRecorded):
		return "Attempt already recorded"
	case errors.Is(err, service.ErrAlreadyMigrated):
		return "Learner has already migrated"
	case errors.Is(err, service.ErrNotEligible):
		return "Learner is not eligible for migration"
	case errors.Is(err, service.ErrAlreadyAssigned):
		return "Learner already has an algorithm assignment"

	// Bad request errors
	case errors.Is(err, service.ErrConsentRequired):
		return "Consent is required to migrate"
	case errors.Is(err, verification.ErrInvalidAttempt):
		return "Invalid attempt"
	case errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID):
		return "Invalid request data"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator errors into a short message naming
// the first failing field. Other errors give a generic message.
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		fe := validationErrs[0]
		return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
	}
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "uuid", "uuid4":
		return "must be a UUID"
	case "min", "gte":
		return "too small"
	case "max", "lte":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
