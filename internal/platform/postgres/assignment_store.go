package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
	"github.com/phrazzld/scry-verify/internal/store"
)

const assignmentColumns = `learner_id, algorithm, assigned_at, assignment_reason,
	eligible_for_migration, rule_based_attempts, migrated_at`

// PostgresAssignmentStore implements the store.AssignmentStore interface
// using a PostgreSQL database as the storage backend.
type PostgresAssignmentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresAssignmentStore creates a new PostgreSQL implementation of the AssignmentStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresAssignmentStore(db store.DBTX, logger *slog.Logger) *PostgresAssignmentStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAssignmentStore{
		db:     db,
		logger: logger.With(slog.String("component", "assignment_store")),
	}
}

// Ensure PostgresAssignmentStore implements store.AssignmentStore interface
var _ store.AssignmentStore = (*PostgresAssignmentStore)(nil)

// Get implements store.AssignmentStore.Get.
func (s *PostgresAssignmentStore) Get(ctx context.Context, learnerID uuid.UUID) (*domain.AlgorithmAssignment, error) {
	return s.get(ctx, learnerID, false)
}

// GetForUpdate implements store.AssignmentStore.GetForUpdate.
func (s *PostgresAssignmentStore) GetForUpdate(ctx context.Context, learnerID uuid.UUID) (*domain.AlgorithmAssignment, error) {
	return s.get(ctx, learnerID, true)
}

func (s *PostgresAssignmentStore) get(
	ctx context.Context,
	learnerID uuid.UUID,
	forUpdate bool,
) (*domain.AlgorithmAssignment, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + assignmentColumns + ` FROM algorithm_assignments WHERE learner_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		a                 domain.AlgorithmAssignment
		algorithm, reason string
	)
	err := s.db.QueryRowContext(ctx, query, learnerID).Scan(
		&a.LearnerID,
		&algorithm,
		&a.AssignedAt,
		&reason,
		&a.EligibleForMigration,
		&a.RuleBasedAttempts,
		&a.MigratedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAssignmentNotFound
		}
		log.Error("failed to get algorithm assignment",
			slog.String("error", err.Error()),
			slog.String("learner_id", learnerID.String()))
		return nil, MapError(err)
	}

	a.Algorithm = domain.AlgorithmType(algorithm)
	a.AssignmentReason = domain.AssignmentReason(reason)
	return &a, nil
}

// CreateIfAbsent implements store.AssignmentStore.CreateIfAbsent.
// It reports whether this call inserted the row; a concurrent or earlier
// assignment leaves the stored row untouched.
func (s *PostgresAssignmentStore) CreateIfAbsent(ctx context.Context, a *domain.AlgorithmAssignment) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := a.Validate(); err != nil {
		return false, err
	}

	query := `
		INSERT INTO algorithm_assignments (` + assignmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (learner_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		a.LearnerID,
		a.Algorithm,
		a.AssignedAt,
		a.AssignmentReason,
		a.EligibleForMigration,
		a.RuleBasedAttempts,
		a.MigratedAt,
	)
	if err != nil {
		log.Error("failed to create algorithm assignment",
			slog.String("error", err.Error()),
			slog.String("learner_id", a.LearnerID.String()))
		return false, MapError(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		log.Info("learner assigned to algorithm",
			slog.String("learner_id", a.LearnerID.String()),
			slog.String("algorithm", string(a.Algorithm)),
			slog.String("reason", string(a.AssignmentReason)))
	}
	return n == 1, nil
}

// Update implements store.AssignmentStore.Update.
func (s *PostgresAssignmentStore) Update(ctx context.Context, a *domain.AlgorithmAssignment) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := a.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE algorithm_assignments
		SET algorithm = $2, assigned_at = $3, assignment_reason = $4,
			eligible_for_migration = $5, rule_based_attempts = $6, migrated_at = $7
		WHERE learner_id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		a.LearnerID,
		a.Algorithm,
		a.AssignedAt,
		a.AssignmentReason,
		a.EligibleForMigration,
		a.RuleBasedAttempts,
		a.MigratedAt,
	)
	if err != nil {
		log.Error("failed to update algorithm assignment",
			slog.String("error", err.Error()),
			slog.String("learner_id", a.LearnerID.String()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrAssignmentNotFound)
}
