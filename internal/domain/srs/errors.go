package srs

import (
	"errors"
	"fmt"

	"github.com/phrazzld/scry-verify/internal/domain"
)

// Common errors
var (
	ErrNilCard = errors.New("card state cannot be nil")

	// ErrInvalidRating is returned when a rating falls outside 0..4.
	ErrInvalidRating = domain.ErrInvalidRating

	// ErrPayloadMismatch is returned when a scheduler receives a card whose
	// payload belongs to the other algorithm.
	ErrPayloadMismatch = domain.ErrPayloadMismatch

	// ErrUnknownAlgorithm is matched by every UnknownAlgorithmTypeError.
	ErrUnknownAlgorithm = errors.New("unknown algorithm type")
)

// UnknownAlgorithmTypeError is returned when a card or assignment carries an
// algorithm type that no registered scheduler handles.
type UnknownAlgorithmTypeError struct {
	Type domain.AlgorithmType
}

// Error implements the error interface.
func (e *UnknownAlgorithmTypeError) Error() string {
	return fmt.Sprintf("unknown algorithm type %q", string(e.Type))
}

// Is makes errors.Is(err, ErrUnknownAlgorithm) match.
func (e *UnknownAlgorithmTypeError) Is(target error) bool {
	return target == ErrUnknownAlgorithm
}
