package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AssignmentReason records how a learner ended up on an algorithm.
type AssignmentReason string

// Assignment reasons
const (
	AssignmentRandom    AssignmentReason = "random"
	AssignmentManual    AssignmentReason = "manual"
	AssignmentMigration AssignmentReason = "migration"
)

// Assignment validation errors
var (
	ErrAssignmentLearnerIDEmpty = errors.New("assignment learner ID cannot be empty")
	ErrInvalidAssignmentReason  = errors.New("invalid assignment reason")
	ErrNegativeAttemptCount     = errors.New("attempt count cannot be negative")
)

// AlgorithmAssignment binds a learner to one scheduler for the comparison.
type AlgorithmAssignment struct {
	LearnerID            uuid.UUID        `json:"learner_id"`
	Algorithm            AlgorithmType    `json:"algorithm"`
	AssignedAt           time.Time        `json:"assigned_at"`
	AssignmentReason     AssignmentReason `json:"assignment_reason"`
	EligibleForMigration bool             `json:"eligible_for_migration"`
	RuleBasedAttempts    int              `json:"rule_based_attempts"`
	MigratedAt           *time.Time       `json:"migrated_at,omitempty"`
}

// NewAlgorithmAssignment creates an assignment stamped with now.
func NewAlgorithmAssignment(
	learnerID uuid.UUID,
	algorithm AlgorithmType,
	reason AssignmentReason,
	now time.Time,
) (*AlgorithmAssignment, error) {
	a := &AlgorithmAssignment{
		LearnerID:        learnerID,
		Algorithm:        algorithm,
		AssignedAt:       now.UTC(),
		AssignmentReason: reason,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks the assignment fields.
func (a *AlgorithmAssignment) Validate() error {
	if a.LearnerID == uuid.Nil {
		return ErrAssignmentLearnerIDEmpty
	}
	if !a.Algorithm.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAlgorithmType, a.Algorithm)
	}
	switch a.AssignmentReason {
	case AssignmentRandom, AssignmentManual, AssignmentMigration:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAssignmentReason, a.AssignmentReason)
	}
	if a.RuleBasedAttempts < 0 {
		return ErrNegativeAttemptCount
	}
	return nil
}

// Migrated reports whether the learner has already been moved off the
// rule-based scheduler.
func (a *AlgorithmAssignment) Migrated() bool {
	return a.MigratedAt != nil
}
