package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
	"github.com/phrazzld/scry-verify/internal/store"
)

const statisticsColumns = `question_id, total_attempts, correct_attempts, total_response_time_ms,
	distractor_selection_counts, ability_sum_correct, ability_sum_wrong, ability_count_correct,
	ability_count_wrong, difficulty_index, discrimination_index, quality_score, needs_review,
	review_reason, needs_recalculation, version, recomputed_at, updated_at`

// PostgresQuestionStatisticsStore implements the store.QuestionStatisticsStore
// interface using a PostgreSQL database as the storage backend.
type PostgresQuestionStatisticsStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresQuestionStatisticsStore creates a new PostgreSQL implementation of the
// QuestionStatisticsStore interface. If logger is nil, a default logger will be used.
func NewPostgresQuestionStatisticsStore(db store.DBTX, logger *slog.Logger) *PostgresQuestionStatisticsStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresQuestionStatisticsStore{
		db:     db,
		logger: logger.With(slog.String("component", "question_statistics_store")),
	}
}

// Ensure PostgresQuestionStatisticsStore implements store.QuestionStatisticsStore interface
var _ store.QuestionStatisticsStore = (*PostgresQuestionStatisticsStore)(nil)

// Create implements store.QuestionStatisticsStore.Create.
func (s *PostgresQuestionStatisticsStore) Create(ctx context.Context, stats *domain.QuestionStatistics) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	counts, err := encodeCounts(stats)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO question_statistics (` + statisticsColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = s.db.ExecContext(ctx, query,
		stats.QuestionID,
		stats.TotalAttempts,
		stats.CorrectAttempts,
		stats.TotalResponseTimeMs,
		counts,
		stats.AbilitySumCorrect,
		stats.AbilitySumWrong,
		stats.AbilityCountCorrect,
		stats.AbilityCountWrong,
		stats.DifficultyIndex,
		stats.DiscriminationIndex,
		stats.QualityScore,
		stats.NeedsReview,
		stats.ReviewReason,
		stats.NeedsRecalculation,
		stats.Version,
		stats.RecomputedAt,
		stats.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create question statistics",
			slog.String("error", err.Error()),
			slog.String("question_id", stats.QuestionID.String()))
		return MapError(err)
	}
	return nil
}

// Get implements store.QuestionStatisticsStore.Get.
func (s *PostgresQuestionStatisticsStore) Get(ctx context.Context, questionID uuid.UUID) (*domain.QuestionStatistics, error) {
	return s.get(ctx, questionID, false)
}

// GetForUpdate implements store.QuestionStatisticsStore.GetForUpdate.
func (s *PostgresQuestionStatisticsStore) GetForUpdate(ctx context.Context, questionID uuid.UUID) (*domain.QuestionStatistics, error) {
	return s.get(ctx, questionID, true)
}

func (s *PostgresQuestionStatisticsStore) get(
	ctx context.Context,
	questionID uuid.UUID,
	forUpdate bool,
) (*domain.QuestionStatistics, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + statisticsColumns + ` FROM question_statistics WHERE question_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	stats, err := scanStatistics(s.db.QueryRowContext(ctx, query, questionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrQuestionStatisticsNotFound
		}
		log.Error("failed to get question statistics",
			slog.String("error", err.Error()),
			slog.String("question_id", questionID.String()))
		return nil, MapError(err)
	}
	return stats, nil
}

// Save implements store.QuestionStatisticsStore.Save.
//
// The write only applies when the stored version still equals stats.Version;
// on success the version is incremented in the row and on stats. A missing
// row yields store.ErrQuestionStatisticsNotFound and a changed version yields
// store.ErrStaleWrite.
func (s *PostgresQuestionStatisticsStore) Save(ctx context.Context, stats *domain.QuestionStatistics) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	counts, err := encodeCounts(stats)
	if err != nil {
		return err
	}

	query := `
		UPDATE question_statistics
		SET total_attempts = $3, correct_attempts = $4, total_response_time_ms = $5,
			distractor_selection_counts = $6, ability_sum_correct = $7, ability_sum_wrong = $8,
			ability_count_correct = $9, ability_count_wrong = $10, difficulty_index = $11,
			discrimination_index = $12, quality_score = $13, needs_review = $14,
			review_reason = $15, needs_recalculation = $16, recomputed_at = $17,
			updated_at = $18, version = version + 1
		WHERE question_id = $1 AND version = $2
	`
	result, err := s.db.ExecContext(ctx, query,
		stats.QuestionID,
		stats.Version,
		stats.TotalAttempts,
		stats.CorrectAttempts,
		stats.TotalResponseTimeMs,
		counts,
		stats.AbilitySumCorrect,
		stats.AbilitySumWrong,
		stats.AbilityCountCorrect,
		stats.AbilityCountWrong,
		stats.DifficultyIndex,
		stats.DiscriminationIndex,
		stats.QualityScore,
		stats.NeedsReview,
		stats.ReviewReason,
		stats.NeedsRecalculation,
		stats.RecomputedAt,
		stats.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to save question statistics",
			slog.String("error", err.Error()),
			slog.String("question_id", stats.QuestionID.String()))
		return MapError(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM question_statistics WHERE question_id = $1)`,
			stats.QuestionID).Scan(&exists)
		if err != nil {
			return MapError(err)
		}
		if !exists {
			return store.ErrQuestionStatisticsNotFound
		}
		log.Debug("stale question statistics write",
			slog.String("question_id", stats.QuestionID.String()),
			slog.Int64("version", stats.Version))
		return store.ErrStaleWrite
	}

	stats.Version++
	return nil
}

// ListByQuestionIDs implements store.QuestionStatisticsStore.ListByQuestionIDs.
// Questions without a statistics row are absent from the map.
func (s *PostgresQuestionStatisticsStore) ListByQuestionIDs(
	ctx context.Context,
	questionIDs []uuid.UUID,
) (map[uuid.UUID]*domain.QuestionStatistics, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	out := make(map[uuid.UUID]*domain.QuestionStatistics, len(questionIDs))
	if len(questionIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlBuilder.Select(statisticsColumns).
		From("question_statistics").
		Where(squirrel.Eq{"question_id": questionIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build statistics query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list question statistics",
			slog.String("error", err.Error()),
			slog.Int("count", len(questionIDs)))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		stats, err := scanStatistics(rows)
		if err != nil {
			return nil, err
		}
		out[stats.QuestionID] = stats
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return out, nil
}

// ListNeedingRecalculation implements store.QuestionStatisticsStore.ListNeedingRecalculation.
// The longest-waiting rows come first.
func (s *PostgresQuestionStatisticsStore) ListNeedingRecalculation(ctx context.Context, limit int) ([]uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	q := sqlBuilder.Select("question_id").
		From("question_statistics").
		Where(squirrel.Eq{"needs_recalculation": true}).
		OrderBy("updated_at ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recalculation query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list statistics needing recalculation",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return ids, nil
}

func scanStatistics(row rowScanner) (*domain.QuestionStatistics, error) {
	var (
		stats  domain.QuestionStatistics
		counts []byte
	)
	err := row.Scan(
		&stats.QuestionID,
		&stats.TotalAttempts,
		&stats.CorrectAttempts,
		&stats.TotalResponseTimeMs,
		&counts,
		&stats.AbilitySumCorrect,
		&stats.AbilitySumWrong,
		&stats.AbilityCountCorrect,
		&stats.AbilityCountWrong,
		&stats.DifficultyIndex,
		&stats.DiscriminationIndex,
		&stats.QualityScore,
		&stats.NeedsReview,
		&stats.ReviewReason,
		&stats.NeedsRecalculation,
		&stats.Version,
		&stats.RecomputedAt,
		&stats.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	stats.DistractorSelectionCounts = map[domain.RelationType]int{}
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &stats.DistractorSelectionCounts); err != nil {
			return nil, fmt.Errorf("decode distractor selection counts: %w", err)
		}
	}
	return &stats, nil
}

func encodeCounts(stats *domain.QuestionStatistics) (string, error) {
	counts := stats.DistractorSelectionCounts
	if counts == nil {
		counts = map[domain.RelationType]int{}
	}
	raw, err := json.Marshal(counts)
	if err != nil {
		return "", fmt.Errorf("encode distractor selection counts: %w", err)
	}
	return string(raw), nil
}
