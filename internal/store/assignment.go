package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
)

// AssignmentStore persists learner algorithm assignments.
type AssignmentStore interface {
	// Get returns the learner's assignment.
	// Returns ErrAssignmentNotFound if the learner has none.
	Get(ctx context.Context, learnerID uuid.UUID) (*domain.AlgorithmAssignment, error)

	// GetForUpdate returns the assignment with a row-level lock.
	// Returns ErrAssignmentNotFound if the learner has none.
	GetForUpdate(ctx context.Context, learnerID uuid.UUID) (*domain.AlgorithmAssignment, error)

	// CreateIfAbsent inserts the assignment unless one already exists for the
	// learner, and reports whether this call created it. Concurrent callers
	// racing on the same learner get exactly one winner.
	CreateIfAbsent(ctx context.Context, assignment *domain.AlgorithmAssignment) (bool, error)

	// Update persists the assignment's algorithm, reason, counters and
	// migration fields.
	// Returns ErrAssignmentNotFound if the learner has none.
	Update(ctx context.Context, assignment *domain.AlgorithmAssignment) error
}
