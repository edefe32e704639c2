package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/domain/srs"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
	"github.com/phrazzld/scry-verify/internal/store"
)

// DefaultMigrationThreshold is the number of rule-based attempts after which
// a learner may opt into the model-based scheduler.
const DefaultMigrationThreshold = 100

// AssignmentService decides which scheduler a learner uses and manages the
// one-time migration from the rule-based to the model-based scheduler.
type AssignmentService interface {
	// GetAlgorithm returns the learner's current algorithm without side effects.
	// Returns store.ErrAssignmentNotFound if the learner has not been assigned yet.
	GetAlgorithm(ctx context.Context, learnerID uuid.UUID) (domain.AlgorithmType, error)

	// GetAssignment returns the learner's full assignment record.
	// Returns store.ErrAssignmentNotFound if the learner has not been assigned yet.
	GetAssignment(ctx context.Context, learnerID uuid.UUID) (*domain.AlgorithmAssignment, error)

	// EnsureAssignment returns the learner's assignment, creating it with an
	// unbiased random draw on first use. Concurrent first calls agree on a
	// single persisted assignment.
	EnsureAssignment(ctx context.Context, learnerID uuid.UUID) (*domain.AlgorithmAssignment, error)

	// EnsureAssignmentTx is EnsureAssignment run against transaction-bound stores.
	EnsureAssignmentTx(ctx context.Context, tx store.Stores, learnerID uuid.UUID) (*domain.AlgorithmAssignment, error)

	// AssignManually pins a learner to an algorithm.
	// Returns ErrAlreadyAssigned if the learner already has an assignment.
	AssignManually(
		ctx context.Context,
		learnerID uuid.UUID,
		algorithm domain.AlgorithmType,
	) (*domain.AlgorithmAssignment, error)

	// IsEligibleForMigration reports whether the learner may migrate now.
	IsEligibleForMigration(ctx context.Context, learnerID uuid.UUID) (bool, error)

	// Migrate moves an eligible, consenting learner to the model-based
	// scheduler. The switch happens once and is never reversed.
	// Returns ErrConsentRequired, ErrNotEligible or ErrAlreadyMigrated when
	// the corresponding condition fails.
	Migrate(ctx context.Context, learnerID uuid.UUID, consent bool) (*domain.AlgorithmAssignment, error)

	// CountAttempt records one attempt made under alg against the assignment
	// and refreshes its eligibility flag. The caller persists the result.
	CountAttempt(assignment *domain.AlgorithmAssignment, alg domain.AlgorithmType)

	// AlignCard converts a card whose payload still belongs to a previous
	// algorithm. The boolean reports whether the card changed.
	AlignCard(
		card *domain.CardState,
		assignment *domain.AlgorithmAssignment,
	) (*domain.CardState, bool, error)
}

// AssignmentOption configures an assignment service.
type AssignmentOption func(*assignmentServiceImpl)

// WithCoinFlip replaces the random draw used for new learners. The flip
// returns true for the rule-based scheduler.
func WithCoinFlip(flip func() bool) AssignmentOption {
	return func(s *assignmentServiceImpl) {
		if flip != nil {
			s.coinFlip = flip
		}
	}
}

// WithAssignmentClock replaces the time source.
func WithAssignmentClock(now func() time.Time) AssignmentOption {
	return func(s *assignmentServiceImpl) {
		if now != nil {
			s.now = now
		}
	}
}

type assignmentServiceImpl struct {
	stores    store.Stores
	tx        store.Transactor
	srs       srs.Service
	threshold int
	coinFlip  func() bool
	now       func() time.Time
	logger    *slog.Logger
}

// Ensure assignmentServiceImpl implements AssignmentService interface
var _ AssignmentService = (*assignmentServiceImpl)(nil)

// NewAssignmentService creates a new assignment service.
// A non-positive threshold falls back to DefaultMigrationThreshold.
// It will panic if any required dependency is nil.
func NewAssignmentService(
	stores store.Stores,
	tx store.Transactor,
	srsService srs.Service,
	threshold int,
	logger *slog.Logger,
	opts ...AssignmentOption,
) AssignmentService {
	if stores.Assignments == nil {
		panic("assignment store cannot be nil")
	}
	if tx == nil {
		panic("transactor cannot be nil")
	}
	if srsService == nil {
		panic("srsService cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = DefaultMigrationThreshold
	}

	s := &assignmentServiceImpl{
		stores:    stores,
		tx:        tx,
		srs:       srsService,
		threshold: threshold,
		coinFlip:  func() bool { return rand.IntN(2) == 0 },
		now:       time.Now,
		logger:    logger.With(slog.String("component", "assignment_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetAlgorithm implements AssignmentService.GetAlgorithm.
func (s *assignmentServiceImpl) GetAlgorithm(ctx context.Context, learnerID uuid.UUID) (domain.AlgorithmType, error) {
	a, err := s.GetAssignment(ctx, learnerID)
	if err != nil {
		return "", err
	}
	return a.Algorithm, nil
}

// GetAssignment implements AssignmentService.GetAssignment.
func (s *assignmentServiceImpl) GetAssignment(
	ctx context.Context,
	learnerID uuid.UUID,
) (*domain.AlgorithmAssignment, error) {
	a, err := s.stores.Assignments.Get(ctx, learnerID)
	if err != nil {
		if errors.Is(err, store.ErrAssignmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// EnsureAssignment implements AssignmentService.EnsureAssignment.
func (s *assignmentServiceImpl) EnsureAssignment(
	ctx context.Context,
	learnerID uuid.UUID,
) (*domain.AlgorithmAssignment, error) {
	return s.EnsureAssignmentTx(ctx, s.stores, learnerID)
}

// EnsureAssignmentTx implements AssignmentService.EnsureAssignmentTx.
func (s *assignmentServiceImpl) EnsureAssignmentTx(
	ctx context.Context,
	tx store.Stores,
	learnerID uuid.UUID,
) (*domain.AlgorithmAssignment, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	existing, err := tx.Assignments.Get(ctx, learnerID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrAssignmentNotFound) {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	alg := domain.AlgorithmModelBased
	if s.coinFlip() {
		alg = domain.AlgorithmRuleBased
	}
	a, err := domain.NewAlgorithmAssignment(learnerID, alg, domain.AssignmentRandom, s.now())
	if err != nil {
		return nil, err
	}

	created, err := tx.Assignments.CreateIfAbsent(ctx, a)
	if err != nil {
		log.Error("failed to create assignment",
			slog.String("error", err.Error()),
			slog.String("learner_id", learnerID.String()))
		return nil, fmt.Errorf("failed to create assignment: %w", err)
	}
	if created {
		log.Info("learner assigned to algorithm",
			slog.String("learner_id", learnerID.String()),
			slog.String("algorithm", string(alg)))
		return a, nil
	}

	// Another request won the race; its row is authoritative.
	winner, err := tx.Assignments.Get(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload assignment: %w", err)
	}
	return winner, nil
}

// AssignManually implements AssignmentService.AssignManually.
func (s *assignmentServiceImpl) AssignManually(
	ctx context.Context,
	learnerID uuid.UUID,
	algorithm domain.AlgorithmType,
) (*domain.AlgorithmAssignment, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	a, err := domain.NewAlgorithmAssignment(learnerID, algorithm, domain.AssignmentManual, s.now())
	if err != nil {
		return nil, err
	}

	created, err := s.stores.Assignments.CreateIfAbsent(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to create assignment: %w", err)
	}
	if !created {
		log.Warn("manual assignment rejected, learner already assigned",
			slog.String("learner_id", learnerID.String()))
		return nil, ErrAlreadyAssigned
	}

	log.Info("learner manually assigned to algorithm",
		slog.String("learner_id", learnerID.String()),
		slog.String("algorithm", string(algorithm)))
	return a, nil
}

// IsEligibleForMigration implements AssignmentService.IsEligibleForMigration.
// A learner without an assignment is not eligible.
func (s *assignmentServiceImpl) IsEligibleForMigration(ctx context.Context, learnerID uuid.UUID) (bool, error) {
	a, err := s.GetAssignment(ctx, learnerID)
	if err != nil {
		if errors.Is(err, store.ErrAssignmentNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.eligible(a), nil
}

func (s *assignmentServiceImpl) eligible(a *domain.AlgorithmAssignment) bool {
	return a.Algorithm == domain.AlgorithmRuleBased &&
		!a.Migrated() &&
		a.RuleBasedAttempts >= s.threshold
}

// Migrate implements AssignmentService.Migrate.
func (s *assignmentServiceImpl) Migrate(
	ctx context.Context,
	learnerID uuid.UUID,
	consent bool,
) (*domain.AlgorithmAssignment, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !consent {
		return nil, ErrConsentRequired
	}

	var migrated *domain.AlgorithmAssignment
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx store.Stores) error {
		a, err := tx.Assignments.GetForUpdate(ctx, learnerID)
		if err != nil {
			if errors.Is(err, store.ErrAssignmentNotFound) {
				return ErrNotEligible
			}
			return fmt.Errorf("failed to lock assignment: %w", err)
		}
		if a.Migrated() {
			return ErrAlreadyMigrated
		}
		if !s.eligible(a) {
			return ErrNotEligible
		}

		now := s.now().UTC()
		a.Algorithm = domain.AlgorithmModelBased
		a.AssignmentReason = domain.AssignmentMigration
		a.EligibleForMigration = false
		a.MigratedAt = &now

		if err := tx.Assignments.Update(ctx, a); err != nil {
			return fmt.Errorf("failed to update assignment: %w", err)
		}
		migrated = a
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotEligible) || errors.Is(err, ErrAlreadyMigrated) {
			log.Debug("migration refused",
				slog.String("learner_id", learnerID.String()),
				slog.String("reason", err.Error()))
		} else {
			log.Error("migration failed",
				slog.String("error", err.Error()),
				slog.String("learner_id", learnerID.String()))
		}
		return nil, err
	}

	log.Info("learner migrated to model-based scheduler",
		slog.String("learner_id", learnerID.String()),
		slog.Int("rule_based_attempts", migrated.RuleBasedAttempts))
	return migrated, nil
}

// CountAttempt implements AssignmentService.CountAttempt.
func (s *assignmentServiceImpl) CountAttempt(a *domain.AlgorithmAssignment, alg domain.AlgorithmType) {
	if alg == domain.AlgorithmRuleBased {
		a.RuleBasedAttempts++
	}
	a.EligibleForMigration = s.eligible(a)
}

// AlignCard implements AssignmentService.AlignCard.
func (s *assignmentServiceImpl) AlignCard(
	card *domain.CardState,
	assignment *domain.AlgorithmAssignment,
) (*domain.CardState, bool, error) {
	if card.AlgorithmType == assignment.Algorithm {
		return card, false, nil
	}
	converted, err := s.srs.ConvertPayload(card, assignment.Algorithm, s.now())
	if err != nil {
		return nil, false, fmt.Errorf("failed to convert card payload: %w", err)
	}
	return converted, true, nil
}
