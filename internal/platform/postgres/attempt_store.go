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

const attemptColumns = `id, learner_id, question_id, target_item_id, correct, response_time_ms,
	selected_option_index, ability_estimate, context, algorithm_type, rating, created_at`

// PostgresAttemptStore implements the store.AttemptStore interface
// using a PostgreSQL database as the storage backend.
type PostgresAttemptStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresAttemptStore creates a new PostgreSQL implementation of the AttemptStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresAttemptStore(db store.DBTX, logger *slog.Logger) *PostgresAttemptStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAttemptStore{
		db:     db,
		logger: logger.With(slog.String("component", "attempt_store")),
	}
}

// Ensure PostgresAttemptStore implements store.AttemptStore interface
var _ store.AttemptStore = (*PostgresAttemptStore)(nil)

// Create implements store.AttemptStore.Create.
// Returns store.ErrAttemptExists if an attempt with the same id was recorded.
func (s *PostgresAttemptStore) Create(ctx context.Context, a *domain.AttemptRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := a.Validate(); err != nil {
		log.Warn("attempt validation failed during create",
			slog.String("error", err.Error()),
			slog.String("attempt_id", a.ID.String()))
		return err
	}

	query := `
		INSERT INTO attempts (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID,
		a.LearnerID,
		a.QuestionID,
		a.TargetItemID,
		a.Correct,
		a.ResponseTimeMs,
		a.SelectedOptionIndex,
		a.AbilityEstimate,
		a.Context,
		a.AlgorithmType,
		int(a.Rating),
		a.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Debug("attempt already recorded", slog.String("attempt_id", a.ID.String()))
			return MapUniqueViolation(err, store.ErrAttemptExists)
		}
		log.Error("failed to record attempt",
			slog.String("error", err.Error()),
			slog.String("attempt_id", a.ID.String()),
			slog.String("question_id", a.QuestionID.String()))
		return MapError(err)
	}
	return nil
}

// Get implements store.AttemptStore.Get.
func (s *PostgresAttemptStore) Get(ctx context.Context, id uuid.UUID) (*domain.AttemptRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE id = $1`
	a, err := scanAttempt(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAttemptNotFound
		}
		log.Error("failed to get attempt",
			slog.String("error", err.Error()),
			slog.String("attempt_id", id.String()))
		return nil, MapError(err)
	}
	return a, nil
}

// CountByLearnerAndAlgorithm implements store.AttemptStore.CountByLearnerAndAlgorithm.
func (s *PostgresAttemptStore) CountByLearnerAndAlgorithm(
	ctx context.Context,
	learnerID uuid.UUID,
	algorithm domain.AlgorithmType,
) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE learner_id = $1 AND algorithm_type = $2`,
		learnerID, algorithm).Scan(&n)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to count attempts",
			slog.String("error", err.Error()),
			slog.String("learner_id", learnerID.String()))
		return 0, MapError(err)
	}
	return n, nil
}

// ListByQuestion implements store.AttemptStore.ListByQuestion.
// Attempts are returned in the order they were recorded.
func (s *PostgresAttemptStore) ListByQuestion(ctx context.Context, questionID uuid.UUID) ([]*domain.AttemptRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE question_id = $1 ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, questionID)
	if err != nil {
		log.Error("failed to list attempts",
			slog.String("error", err.Error()),
			slog.String("question_id", questionID.String()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var attempts []*domain.AttemptRecord
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return attempts, nil
}

func scanAttempt(row rowScanner) (*domain.AttemptRecord, error) {
	var (
		a                domain.AttemptRecord
		attemptCtx, algo string
		rating           int
	)
	err := row.Scan(
		&a.ID,
		&a.LearnerID,
		&a.QuestionID,
		&a.TargetItemID,
		&a.Correct,
		&a.ResponseTimeMs,
		&a.SelectedOptionIndex,
		&a.AbilityEstimate,
		&attemptCtx,
		&algo,
		&rating,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Context = domain.AttemptContext(attemptCtx)
	a.AlgorithmType = domain.AlgorithmType(algo)
	a.Rating = domain.Rating(rating)
	return &a, nil
}
