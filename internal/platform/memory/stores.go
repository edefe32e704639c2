package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/store"
)

// CardStateStore implements store.CardStateStore.
type CardStateStore struct {
	b binding
}

// Ensure CardStateStore implements store.CardStateStore interface
var _ store.CardStateStore = (*CardStateStore)(nil)

func copyCard(c *domain.CardState) *domain.CardState {
	out := c.Clone()
	return &out
}

// Create implements store.CardStateStore.Create.
func (s *CardStateStore) Create(ctx context.Context, card *domain.CardState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := card.Validate(); err != nil {
		return err
	}
	return s.b.update(func(st *state) error {
		key := cardKey{card.LearnerID, card.ItemID}
		if _, ok := st.cards[key]; ok {
			return store.ErrCardStateExists
		}
		st.cards[key] = copyCard(card)
		return nil
	})
}

// Get implements store.CardStateStore.Get.
func (s *CardStateStore) Get(ctx context.Context, learnerID, itemID uuid.UUID) (*domain.CardState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *domain.CardState
	err := s.b.view(func(st *state) error {
		card, ok := st.cards[cardKey{learnerID, itemID}]
		if !ok {
			return store.ErrCardStateNotFound
		}
		out = copyCard(card)
		return nil
	})
	return out, err
}

// GetForUpdate implements store.CardStateStore.GetForUpdate. Transactions
// are serialized, so no extra locking is needed.
func (s *CardStateStore) GetForUpdate(ctx context.Context, learnerID, itemID uuid.UUID) (*domain.CardState, error) {
	return s.Get(ctx, learnerID, itemID)
}

// Update implements store.CardStateStore.Update.
func (s *CardStateStore) Update(ctx context.Context, card *domain.CardState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := card.Validate(); err != nil {
		return err
	}
	return s.b.update(func(st *state) error {
		key := cardKey{card.LearnerID, card.ItemID}
		existing, ok := st.cards[key]
		if !ok {
			return store.ErrCardStateNotFound
		}
		updated := copyCard(card)
		updated.CreatedAt = existing.CreatedAt
		st.cards[key] = updated
		return nil
	})
}

// ListDue implements store.CardStateStore.ListDue.
func (s *CardStateStore) ListDue(
	ctx context.Context,
	learnerID uuid.UUID,
	dueBefore time.Time,
	filter store.DueFilter,
) ([]*domain.CardState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	excluded := make(map[uuid.UUID]struct{}, len(filter.ExcludeItemIDs))
	for _, id := range filter.ExcludeItemIDs {
		excluded[id] = struct{}{}
	}

	var cards []*domain.CardState
	err := s.b.view(func(st *state) error {
		for key, card := range st.cards {
			if key.learnerID != learnerID || !card.DueAt.Before(dueBefore) {
				continue
			}
			if _, skip := excluded[key.itemID]; skip {
				continue
			}
			if filter.ExcludeLeeches && card.IsLeech {
				continue
			}
			cards = append(cards, copyCard(card))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(cards, func(i, j int) bool {
		if !cards[i].DueAt.Equal(cards[j].DueAt) {
			return cards[i].DueAt.Before(cards[j].DueAt)
		}
		return cards[i].ItemID.String() < cards[j].ItemID.String()
	})
	if filter.Limit > 0 && len(cards) > filter.Limit {
		cards = cards[:filter.Limit]
	}
	return cards, nil
}

// AssignmentStore implements store.AssignmentStore.
type AssignmentStore struct {
	b binding
}

// Ensure AssignmentStore implements store.AssignmentStore interface
var _ store.AssignmentStore = (*AssignmentStore)(nil)

func copyAssignment(a *domain.AlgorithmAssignment) *domain.AlgorithmAssignment {
	out := *a
	if a.MigratedAt != nil {
		t := *a.MigratedAt
		out.MigratedAt = &t
	}
	return &out
}

// Get implements store.AssignmentStore.Get.
func (s *AssignmentStore) Get(ctx context.Context, learnerID uuid.UUID) (*domain.AlgorithmAssignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *domain.AlgorithmAssignment
	err := s.b.view(func(st *state) error {
		a, ok := st.assignments[learnerID]
		if !ok {
			return store.ErrAssignmentNotFound
		}
		out = copyAssignment(a)
		return nil
	})
	return out, err
}

// GetForUpdate implements store.AssignmentStore.GetForUpdate.
func (s *AssignmentStore) GetForUpdate(ctx context.Context, learnerID uuid.UUID) (*domain.AlgorithmAssignment, error) {
	return s.Get(ctx, learnerID)
}

// CreateIfAbsent implements store.AssignmentStore.CreateIfAbsent.
func (s *AssignmentStore) CreateIfAbsent(ctx context.Context, assignment *domain.AlgorithmAssignment) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := assignment.Validate(); err != nil {
		return false, err
	}
	created := false
	err := s.b.update(func(st *state) error {
		if _, ok := st.assignments[assignment.LearnerID]; ok {
			return nil
		}
		st.assignments[assignment.LearnerID] = copyAssignment(assignment)
		created = true
		return nil
	})
	return created, err
}

// Update implements store.AssignmentStore.Update.
func (s *AssignmentStore) Update(ctx context.Context, assignment *domain.AlgorithmAssignment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := assignment.Validate(); err != nil {
		return err
	}
	return s.b.update(func(st *state) error {
		if _, ok := st.assignments[assignment.LearnerID]; !ok {
			return store.ErrAssignmentNotFound
		}
		st.assignments[assignment.LearnerID] = copyAssignment(assignment)
		return nil
	})
}

// QuestionStore implements store.QuestionStore.
type QuestionStore struct {
	b binding
}

// Ensure QuestionStore implements store.QuestionStore interface
var _ store.QuestionStore = (*QuestionStore)(nil)

func copyQuestion(q *domain.Question) *domain.Question {
	out := *q
	out.Options = append([]domain.Option(nil), q.Options...)
	return &out
}

// Create implements store.QuestionStore.Create.
func (s *QuestionStore) Create(ctx context.Context, q *domain.Question) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := q.Validate(); err != nil {
		return err
	}
	return s.b.update(func(st *state) error {
		if _, ok := st.questions[q.ID]; ok {
			return store.ErrDuplicate
		}
		if q.Fingerprint != "" {
			if _, ok := st.fingerprints[q.Fingerprint]; ok {
				return store.ErrQuestionFingerprintExists
			}
			st.fingerprints[q.Fingerprint] = q.ID
		}
		st.questions[q.ID] = copyQuestion(q)
		st.questionOrder = append(st.questionOrder, q.ID)
		return nil
	})
}

// Get implements store.QuestionStore.Get.
func (s *QuestionStore) Get(ctx context.Context, id uuid.UUID) (*domain.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *domain.Question
	err := s.b.view(func(st *state) error {
		q, ok := st.questions[id]
		if !ok {
			return store.ErrQuestionNotFound
		}
		out = copyQuestion(q)
		return nil
	})
	return out, err
}

// GetByFingerprint implements store.QuestionStore.GetByFingerprint.
func (s *QuestionStore) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *domain.Question
	err := s.b.view(func(st *state) error {
		id, ok := st.fingerprints[fingerprint]
		if !ok {
			return store.ErrQuestionNotFound
		}
		out = copyQuestion(st.questions[id])
		return nil
	})
	return out, err
}

// ListByItem implements store.QuestionStore.ListByItem.
func (s *QuestionStore) ListByItem(ctx context.Context, itemID uuid.UUID) ([]*domain.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*domain.Question
	err := s.b.view(func(st *state) error {
		for _, id := range st.questionOrder {
			if q := st.questions[id]; q.TargetItemID == itemID {
				out = append(out, copyQuestion(q))
			}
		}
		return nil
	})
	return out, err
}

// QuestionStatisticsStore implements store.QuestionStatisticsStore.
type QuestionStatisticsStore struct {
	b binding
}

// Ensure QuestionStatisticsStore implements store.QuestionStatisticsStore interface
var _ store.QuestionStatisticsStore = (*QuestionStatisticsStore)(nil)

func copyStatistics(s *domain.QuestionStatistics) *domain.QuestionStatistics {
	out := s.Clone()
	return &out
}

// Create implements store.QuestionStatisticsStore.Create.
func (s *QuestionStatisticsStore) Create(ctx context.Context, stats *domain.QuestionStatistics) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.b.update(func(st *state) error {
		if _, ok := st.questions[stats.QuestionID]; !ok {
			return store.ErrInvalidEntity
		}
		if _, ok := st.statistics[stats.QuestionID]; ok {
			return store.ErrDuplicate
		}
		st.statistics[stats.QuestionID] = copyStatistics(stats)
		return nil
	})
}

// Get implements store.QuestionStatisticsStore.Get.
func (s *QuestionStatisticsStore) Get(ctx context.Context, questionID uuid.UUID) (*domain.QuestionStatistics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *domain.QuestionStatistics
	err := s.b.view(func(st *state) error {
		stats, ok := st.statistics[questionID]
		if !ok {
			return store.ErrQuestionStatisticsNotFound
		}
		out = copyStatistics(stats)
		return nil
	})
	return out, err
}

// GetForUpdate implements store.QuestionStatisticsStore.GetForUpdate.
func (s *QuestionStatisticsStore) GetForUpdate(ctx context.Context, questionID uuid.UUID) (*domain.QuestionStatistics, error) {
	return s.Get(ctx, questionID)
}

// Save implements store.QuestionStatisticsStore.Save.
func (s *QuestionStatisticsStore) Save(ctx context.Context, stats *domain.QuestionStatistics) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.b.update(func(st *state) error {
		existing, ok := st.statistics[stats.QuestionID]
		if !ok {
			return store.ErrQuestionStatisticsNotFound
		}
		if existing.Version != stats.Version {
			return store.ErrStaleWrite
		}
		saved := copyStatistics(stats)
		saved.Version++
		st.statistics[stats.QuestionID] = saved
		prev := stats.Version
		stats.Version = saved.Version
		s.b.onRollback(func() { stats.Version = prev })
		return nil
	})
}

// ListByQuestionIDs implements store.QuestionStatisticsStore.ListByQuestionIDs.
func (s *QuestionStatisticsStore) ListByQuestionIDs(
	ctx context.Context,
	questionIDs []uuid.UUID,
) (map[uuid.UUID]*domain.QuestionStatistics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]*domain.QuestionStatistics, len(questionIDs))
	err := s.b.view(func(st *state) error {
		for _, id := range questionIDs {
			if stats, ok := st.statistics[id]; ok {
				out[id] = copyStatistics(stats)
			}
		}
		return nil
	})
	return out, err
}

// ListNeedingRecalculation implements store.QuestionStatisticsStore.ListNeedingRecalculation.
func (s *QuestionStatisticsStore) ListNeedingRecalculation(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var pending []*domain.QuestionStatistics
	err := s.b.view(func(st *state) error {
		for _, stats := range st.statistics {
			if stats.NeedsRecalculation {
				pending = append(pending, stats)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].UpdatedAt.Equal(pending[j].UpdatedAt) {
			return pending[i].UpdatedAt.Before(pending[j].UpdatedAt)
		}
		return pending[i].QuestionID.String() < pending[j].QuestionID.String()
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	ids := make([]uuid.UUID, 0, len(pending))
	for _, stats := range pending {
		ids = append(ids, stats.QuestionID)
	}
	return ids, nil
}

// AttemptStore implements store.AttemptStore.
type AttemptStore struct {
	b binding
}

// Ensure AttemptStore implements store.AttemptStore interface
var _ store.AttemptStore = (*AttemptStore)(nil)

// Create implements store.AttemptStore.Create.
func (s *AttemptStore) Create(ctx context.Context, a *domain.AttemptRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.Validate(); err != nil {
		return err
	}
	return s.b.update(func(st *state) error {
		if _, ok := st.attempts[a.ID]; ok {
			return store.ErrAttemptExists
		}
		if _, ok := st.questions[a.QuestionID]; !ok {
			return store.ErrInvalidEntity
		}
		rec := *a
		st.attempts[a.ID] = &rec
		st.attemptOrder = append(st.attemptOrder, a.ID)
		return nil
	})
}

// Get implements store.AttemptStore.Get.
func (s *AttemptStore) Get(ctx context.Context, id uuid.UUID) (*domain.AttemptRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *domain.AttemptRecord
	err := s.b.view(func(st *state) error {
		a, ok := st.attempts[id]
		if !ok {
			return store.ErrAttemptNotFound
		}
		rec := *a
		out = &rec
		return nil
	})
	return out, err
}

// CountByLearnerAndAlgorithm implements store.AttemptStore.CountByLearnerAndAlgorithm.
func (s *AttemptStore) CountByLearnerAndAlgorithm(
	ctx context.Context,
	learnerID uuid.UUID,
	algorithm domain.AlgorithmType,
) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	err := s.b.view(func(st *state) error {
		for _, a := range st.attempts {
			if a.LearnerID == learnerID && a.AlgorithmType == algorithm {
				n++
			}
		}
		return nil
	})
	return n, err
}

// ListByQuestion implements store.AttemptStore.ListByQuestion.
func (s *AttemptStore) ListByQuestion(ctx context.Context, questionID uuid.UUID) ([]*domain.AttemptRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*domain.AttemptRecord
	err := s.b.view(func(st *state) error {
		for _, id := range st.attemptOrder {
			if a := st.attempts[id]; a.QuestionID == questionID {
				rec := *a
				out = append(out, &rec)
			}
		}
		return nil
	})
	return out, err
}
