package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
)

// QuestionStore persists immutable questions.
type QuestionStore interface {
	// Create saves a new question.
	// Returns ErrQuestionFingerprintExists if an identical question exists.
	Create(ctx context.Context, question *domain.Question) error

	// Get retrieves a question by id.
	// Returns ErrQuestionNotFound if it does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Question, error)

	// GetByFingerprint retrieves a question by its content fingerprint.
	// Returns ErrQuestionNotFound if it does not exist.
	GetByFingerprint(ctx context.Context, fingerprint string) (*domain.Question, error)

	// ListByItem returns every question targeting the item, oldest first.
	ListByItem(ctx context.Context, itemID uuid.UUID) ([]*domain.Question, error)
}

// QuestionStatisticsStore persists per-question aggregates. Rows are
// addressed individually so attempts on different questions never contend.
type QuestionStatisticsStore interface {
	// Create inserts an empty statistics row.
	// Returns ErrDuplicate if the row exists.
	Create(ctx context.Context, stats *domain.QuestionStatistics) error

	// Get returns the statistics for a question.
	// Returns ErrQuestionStatisticsNotFound if no row exists.
	Get(ctx context.Context, questionID uuid.UUID) (*domain.QuestionStatistics, error)

	// GetForUpdate returns the statistics with a row-level lock.
	// Returns ErrQuestionStatisticsNotFound if no row exists.
	GetForUpdate(ctx context.Context, questionID uuid.UUID) (*domain.QuestionStatistics, error)

	// Save writes the row only if its stored version still equals
	// stats.Version, then increments stats.Version so later saves in the
	// same transaction apply. After a rolled back transaction the caller
	// must reload the row before saving it again.
	// Returns ErrStaleWrite if the version moved.
	Save(ctx context.Context, stats *domain.QuestionStatistics) error

	// ListByQuestionIDs returns the rows that exist for the given questions.
	ListByQuestionIDs(
		ctx context.Context,
		questionIDs []uuid.UUID,
	) (map[uuid.UUID]*domain.QuestionStatistics, error)

	// ListNeedingRecalculation returns up to limit question ids whose
	// counters changed since the last recomputation.
	ListNeedingRecalculation(ctx context.Context, limit int) ([]uuid.UUID, error)
}
