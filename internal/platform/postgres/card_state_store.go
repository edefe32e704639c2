package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
	"github.com/phrazzld/scry-verify/internal/store"
)

// sqlBuilder renders $-placeholder queries for PostgreSQL.
var sqlBuilder = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

const cardStateColumns = `learner_id, item_id, algorithm_type, last_review_date, current_interval_days,
	due_at, total_reviews, total_correct, average_response_time_ms, mastery_level, is_leech,
	recent_outcomes, rule_based, model_based, created_at, updated_at`

// PostgresCardStateStore implements the store.CardStateStore interface
// using a PostgreSQL database as the storage backend.
type PostgresCardStateStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCardStateStore creates a new PostgreSQL implementation of the CardStateStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresCardStateStore(db store.DBTX, logger *slog.Logger) *PostgresCardStateStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCardStateStore{
		db:     db,
		logger: logger.With(slog.String("component", "card_state_store")),
	}
}

// Ensure PostgresCardStateStore implements store.CardStateStore interface
var _ store.CardStateStore = (*PostgresCardStateStore)(nil)

// Create implements store.CardStateStore.Create.
// Returns store.ErrCardStateExists if the learner already has state for the item.
func (s *PostgresCardStateStore) Create(ctx context.Context, card *domain.CardState) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := card.Validate(); err != nil {
		log.Warn("card state validation failed during create",
			slog.String("error", err.Error()),
			slog.String("learner_id", card.LearnerID.String()),
			slog.String("item_id", card.ItemID.String()))
		return err
	}

	outcomes, ruleBased, modelBased, err := encodeCardPayloads(card)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO card_states (` + cardStateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = s.db.ExecContext(ctx, query,
		card.LearnerID,
		card.ItemID,
		card.AlgorithmType,
		card.LastReviewDate,
		card.CurrentIntervalDays,
		card.DueAt,
		card.TotalReviews,
		card.TotalCorrect,
		card.AverageResponseTimeMs,
		card.MasteryLevel,
		card.IsLeech,
		outcomes,
		ruleBased,
		modelBased,
		card.CreatedAt,
		card.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create card state",
			slog.String("error", err.Error()),
			slog.String("learner_id", card.LearnerID.String()),
			slog.String("item_id", card.ItemID.String()))
		return MapUniqueViolation(err, store.ErrCardStateExists)
	}

	log.Debug("card state created",
		slog.String("learner_id", card.LearnerID.String()),
		slog.String("item_id", card.ItemID.String()),
		slog.String("algorithm", string(card.AlgorithmType)))
	return nil
}

// Get implements store.CardStateStore.Get.
func (s *PostgresCardStateStore) Get(ctx context.Context, learnerID, itemID uuid.UUID) (*domain.CardState, error) {
	return s.get(ctx, learnerID, itemID, false)
}

// GetForUpdate implements store.CardStateStore.GetForUpdate.
// The row stays locked until the surrounding transaction ends.
func (s *PostgresCardStateStore) GetForUpdate(ctx context.Context, learnerID, itemID uuid.UUID) (*domain.CardState, error) {
	return s.get(ctx, learnerID, itemID, true)
}

func (s *PostgresCardStateStore) get(
	ctx context.Context,
	learnerID, itemID uuid.UUID,
	forUpdate bool,
) (*domain.CardState, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + cardStateColumns + ` FROM card_states WHERE learner_id = $1 AND item_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	card, err := scanCardState(s.db.QueryRowContext(ctx, query, learnerID, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("card state not found",
				slog.String("learner_id", learnerID.String()),
				slog.String("item_id", itemID.String()))
			return nil, store.ErrCardStateNotFound
		}
		log.Error("failed to get card state",
			slog.String("error", err.Error()),
			slog.String("learner_id", learnerID.String()),
			slog.String("item_id", itemID.String()))
		return nil, MapError(err)
	}
	return card, nil
}

// Update implements store.CardStateStore.Update.
// Returns store.ErrCardStateNotFound if the row does not exist.
func (s *PostgresCardStateStore) Update(ctx context.Context, card *domain.CardState) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := card.Validate(); err != nil {
		log.Warn("card state validation failed during update",
			slog.String("error", err.Error()),
			slog.String("learner_id", card.LearnerID.String()),
			slog.String("item_id", card.ItemID.String()))
		return err
	}

	outcomes, ruleBased, modelBased, err := encodeCardPayloads(card)
	if err != nil {
		return err
	}

	query := `
		UPDATE card_states
		SET algorithm_type = $3, last_review_date = $4, current_interval_days = $5, due_at = $6,
			total_reviews = $7, total_correct = $8, average_response_time_ms = $9,
			mastery_level = $10, is_leech = $11, recent_outcomes = $12, rule_based = $13,
			model_based = $14, updated_at = $15
		WHERE learner_id = $1 AND item_id = $2
	`
	result, err := s.db.ExecContext(ctx, query,
		card.LearnerID,
		card.ItemID,
		card.AlgorithmType,
		card.LastReviewDate,
		card.CurrentIntervalDays,
		card.DueAt,
		card.TotalReviews,
		card.TotalCorrect,
		card.AverageResponseTimeMs,
		card.MasteryLevel,
		card.IsLeech,
		outcomes,
		ruleBased,
		modelBased,
		card.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to update card state",
			slog.String("error", err.Error()),
			slog.String("learner_id", card.LearnerID.String()),
			slog.String("item_id", card.ItemID.String()))
		return MapError(err)
	}

	return CheckRowsAffected(result, store.ErrCardStateNotFound)
}

// ListDue implements store.CardStateStore.ListDue.
// Cards are ordered by due date, oldest first.
func (s *PostgresCardStateStore) ListDue(
	ctx context.Context,
	learnerID uuid.UUID,
	dueBefore time.Time,
	filter store.DueFilter,
) ([]*domain.CardState, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	q := sqlBuilder.Select(cardStateColumns).
		From("card_states").
		Where(squirrel.Eq{"learner_id": learnerID}).
		Where(squirrel.Lt{"due_at": dueBefore}).
		OrderBy("due_at ASC", "item_id ASC")
	if len(filter.ExcludeItemIDs) > 0 {
		q = q.Where(squirrel.NotEq{"item_id": filter.ExcludeItemIDs})
	}
	if filter.ExcludeLeeches {
		q = q.Where(squirrel.Eq{"is_leech": false})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build due card query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list due cards",
			slog.String("error", err.Error()),
			slog.String("learner_id", learnerID.String()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var cards []*domain.CardState
	for rows.Next() {
		card, err := scanCardState(rows)
		if err != nil {
			log.Error("failed to scan due card",
				slog.String("error", err.Error()),
				slog.String("learner_id", learnerID.String()))
			return nil, err
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	log.Debug("listed due cards",
		slog.String("learner_id", learnerID.String()),
		slog.Int("count", len(cards)))
	return cards, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCardState(row rowScanner) (*domain.CardState, error) {
	var (
		card                            domain.CardState
		algorithm, mastery              string
		outcomes, ruleBased, modelBased []byte
	)
	err := row.Scan(
		&card.LearnerID,
		&card.ItemID,
		&algorithm,
		&card.LastReviewDate,
		&card.CurrentIntervalDays,
		&card.DueAt,
		&card.TotalReviews,
		&card.TotalCorrect,
		&card.AverageResponseTimeMs,
		&mastery,
		&card.IsLeech,
		&outcomes,
		&ruleBased,
		&modelBased,
		&card.CreatedAt,
		&card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	card.AlgorithmType = domain.AlgorithmType(algorithm)
	card.MasteryLevel = domain.MasteryLevel(mastery)
	card.RecentOutcomes = []bool{}
	if len(outcomes) > 0 {
		if err := json.Unmarshal(outcomes, &card.RecentOutcomes); err != nil {
			return nil, fmt.Errorf("decode recent outcomes: %w", err)
		}
	}
	if len(ruleBased) > 0 {
		card.RuleBased = &domain.RuleBasedPayload{}
		if err := json.Unmarshal(ruleBased, card.RuleBased); err != nil {
			return nil, fmt.Errorf("decode rule-based payload: %w", err)
		}
	}
	if len(modelBased) > 0 {
		card.ModelBased = &domain.ModelBasedPayload{}
		if err := json.Unmarshal(modelBased, card.ModelBased); err != nil {
			return nil, fmt.Errorf("decode model-based payload: %w", err)
		}
	}
	return &card, nil
}

// encodeCardPayloads renders the JSONB columns. Absent payloads become NULL.
func encodeCardPayloads(card *domain.CardState) (outcomes string, ruleBased, modelBased *string, err error) {
	recent := card.RecentOutcomes
	if recent == nil {
		recent = []bool{}
	}
	raw, err := json.Marshal(recent)
	if err != nil {
		return "", nil, nil, fmt.Errorf("encode recent outcomes: %w", err)
	}
	outcomes = string(raw)

	if card.RuleBased != nil {
		raw, err := json.Marshal(card.RuleBased)
		if err != nil {
			return "", nil, nil, fmt.Errorf("encode rule-based payload: %w", err)
		}
		s := string(raw)
		ruleBased = &s
	}
	if card.ModelBased != nil {
		raw, err := json.Marshal(card.ModelBased)
		if err != nil {
			return "", nil, nil, fmt.Errorf("encode model-based payload: %w", err)
		}
		s := string(raw)
		modelBased = &s
	}
	return outcomes, ruleBased, modelBased, nil
}
