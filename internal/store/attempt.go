package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
)

// AttemptStore is the write-once attempt log.
type AttemptStore interface {
	// Create appends an attempt.
	// Returns ErrAttemptExists if the attempt id was already recorded.
	Create(ctx context.Context, attempt *domain.AttemptRecord) error

	// Get retrieves an attempt by id.
	// Returns ErrAttemptNotFound if it does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.AttemptRecord, error)

	// CountByLearnerAndAlgorithm counts the learner's attempts scored under
	// the given algorithm.
	CountByLearnerAndAlgorithm(
		ctx context.Context,
		learnerID uuid.UUID,
		algorithm domain.AlgorithmType,
	) (int, error)

	// ListByQuestion returns every attempt on a question, oldest first.
	ListByQuestion(ctx context.Context, questionID uuid.UUID) ([]*domain.AttemptRecord, error)
}
