package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
	"github.com/phrazzld/scry-verify/internal/store"
)

const questionColumns = `id, target_item_id, question_type, prompt, context_sentence, options,
	correct_index, explanation, fingerprint, created_at`

// fingerprintConstraint is the unique constraint on questions.fingerprint.
const fingerprintConstraint = "questions_fingerprint_key"

// PostgresQuestionStore implements the store.QuestionStore interface
// using a PostgreSQL database as the storage backend.
type PostgresQuestionStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresQuestionStore creates a new PostgreSQL implementation of the QuestionStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresQuestionStore(db store.DBTX, logger *slog.Logger) *PostgresQuestionStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresQuestionStore{
		db:     db,
		logger: logger.With(slog.String("component", "question_store")),
	}
}

// Ensure PostgresQuestionStore implements store.QuestionStore interface
var _ store.QuestionStore = (*PostgresQuestionStore)(nil)

// Create implements store.QuestionStore.Create.
// Returns store.ErrQuestionFingerprintExists when an identical question is stored.
func (s *PostgresQuestionStore) Create(ctx context.Context, q *domain.Question) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := q.Validate(); err != nil {
		log.Warn("question validation failed during create",
			slog.String("error", err.Error()),
			slog.String("question_id", q.ID.String()))
		return err
	}

	options, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("encode question options: %w", err)
	}

	query := `
		INSERT INTO questions (` + questionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		q.ID,
		q.TargetItemID,
		q.QuestionType,
		q.Prompt,
		q.ContextSentence,
		string(options),
		q.CorrectIndex,
		q.Explanation,
		q.Fingerprint,
		q.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) && constraintName(err) == fingerprintConstraint {
			log.Debug("question with identical fingerprint exists",
				slog.String("fingerprint", q.Fingerprint))
			return MapUniqueViolation(err, store.ErrQuestionFingerprintExists)
		}
		log.Error("failed to create question",
			slog.String("error", err.Error()),
			slog.String("question_id", q.ID.String()))
		return MapError(err)
	}

	log.Debug("question created",
		slog.String("question_id", q.ID.String()),
		slog.String("item_id", q.TargetItemID.String()),
		slog.String("question_type", string(q.QuestionType)))
	return nil
}

// Get implements store.QuestionStore.Get.
func (s *PostgresQuestionStore) Get(ctx context.Context, id uuid.UUID) (*domain.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE id = $1`
	return s.getOne(ctx, query, id)
}

// GetByFingerprint implements store.QuestionStore.GetByFingerprint.
func (s *PostgresQuestionStore) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE fingerprint = $1`
	return s.getOne(ctx, query, fingerprint)
}

func (s *PostgresQuestionStore) getOne(ctx context.Context, query string, arg any) (*domain.Question, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	q, err := scanQuestion(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrQuestionNotFound
		}
		log.Error("failed to get question",
			slog.String("error", err.Error()),
			slog.Any("key", arg))
		return nil, MapError(err)
	}
	return q, nil
}

// ListByItem implements store.QuestionStore.ListByItem.
// Questions are returned oldest first.
func (s *PostgresQuestionStore) ListByItem(ctx context.Context, itemID uuid.UUID) ([]*domain.Question, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + questionColumns + ` FROM questions WHERE target_item_id = $1 ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, itemID)
	if err != nil {
		log.Error("failed to list questions",
			slog.String("error", err.Error()),
			slog.String("item_id", itemID.String()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var questions []*domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return questions, nil
}

func scanQuestion(row rowScanner) (*domain.Question, error) {
	var (
		q            domain.Question
		questionType string
		options      []byte
	)
	err := row.Scan(
		&q.ID,
		&q.TargetItemID,
		&questionType,
		&q.Prompt,
		&q.ContextSentence,
		&options,
		&q.CorrectIndex,
		&q.Explanation,
		&q.Fingerprint,
		&q.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	q.QuestionType = domain.QuestionType(questionType)
	if err := json.Unmarshal(options, &q.Options); err != nil {
		return nil, fmt.Errorf("decode question options: %w", err)
	}
	return &q, nil
}
