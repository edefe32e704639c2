package generation

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
	"github.com/phrazzld/scry-verify/internal/store"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentFetches bounds lexical lookups per Select call.
const maxConcurrentFetches = 8

// tierOrder is the fixed ranking of distractor sources.
var tierOrder = []domain.RelationType{
	domain.RelationConfusable,
	domain.RelationAntonym,
	domain.RelationSynonym,
}

// OptionField names the lexical field an archetype shows as option text.
type OptionField int

// Option fields
const (
	FieldDefinition OptionField = iota
	FieldExampleSentence
	FieldWord
)

// Text returns the field of item that f names.
func (f OptionField) Text(item *domain.LexicalItem) string {
	switch f {
	case FieldExampleSentence:
		return strings.TrimSpace(item.ExampleSentence)
	case FieldWord:
		return strings.TrimSpace(item.Word)
	default:
		return strings.TrimSpace(item.Definition)
	}
}

// Params tunes distractor selection.
type Params struct {
	DistractorCount        int
	MaxSynonymDistractors  int
	NearDuplicateThreshold float64
}

// NewDefaultParams returns the default selection parameters.
func NewDefaultParams() Params {
	return Params{
		DistractorCount:        3,
		MaxSynonymDistractors:  1,
		NearDuplicateThreshold: 0.5,
	}
}

// Candidate is one selected wrong answer.
type Candidate struct {
	Item     *domain.LexicalItem
	Relation domain.RelationType
	Text     string
}

// DistractorSelector draws wrong answers from the relations of a target item.
type DistractorSelector struct {
	lexicon store.LexicalStore
	params  Params
	logger  *slog.Logger
}

// NewDistractorSelector creates a selector over the given lexical store.
// Non-positive counts and thresholds fall back to the defaults.
func NewDistractorSelector(
	lexicon store.LexicalStore,
	params Params,
	logger *slog.Logger,
) *DistractorSelector {
	if lexicon == nil {
		panic("lexicon cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	defaults := NewDefaultParams()
	if params.DistractorCount <= 0 {
		params.DistractorCount = defaults.DistractorCount
	}
	if params.MaxSynonymDistractors < 0 {
		params.MaxSynonymDistractors = defaults.MaxSynonymDistractors
	}
	if params.NearDuplicateThreshold <= 0 {
		params.NearDuplicateThreshold = defaults.NearDuplicateThreshold
	}
	return &DistractorSelector{
		lexicon: lexicon,
		params:  params,
		logger:  logger.With(slog.String("component", "distractor_selector")),
	}
}

// Count returns the number of distractors each question needs.
func (s *DistractorSelector) Count() int {
	return s.params.DistractorCount
}

// Select returns up to n distractors for target whose field text is usable,
// in tier order: confusable, antonym, then at most MaxSynonymDistractors
// synonyms that are not near-duplicates of the target's definition.
//
// Items with the same lexeme or surface word as the target are dropped before
// ranking. Related items that cannot be read are skipped. Fewer than n
// survivors yields an InsufficientDataError carrying the count found.
func (s *DistractorSelector) Select(
	ctx context.Context,
	target *domain.LexicalItem,
	n int,
	field OptionField,
	questionType domain.QuestionType,
) ([]Candidate, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("item_id", target.ID.String()),
		slog.String("question_type", string(questionType)),
	)

	items, err := s.fetchRelated(ctx, target)
	if err != nil {
		return nil, err
	}

	targetText := strings.ToLower(field.Text(target))
	seenItems := map[uuid.UUID]bool{target.ID: true}
	seenTexts := map[string]bool{targetText: true}
	synonyms := 0

	var picked []Candidate
	for _, tier := range tierOrder {
		for _, id := range target.RelationsOf(tier) {
			if len(picked) == n {
				break
			}
			item, ok := items[id]
			if !ok || seenItems[id] {
				continue
			}
			if item.SameLexeme(target) {
				log.Debug("dropped sibling sense",
					slog.String("candidate_id", id.String()))
				seenItems[id] = true
				continue
			}
			text := field.Text(item)
			if text == "" {
				continue
			}
			key := strings.ToLower(text)
			if seenTexts[key] {
				continue
			}
			if tier == domain.RelationSynonym {
				if synonyms >= s.params.MaxSynonymDistractors {
					continue
				}
				if Jaccard(item.Definition, target.Definition) >= s.params.NearDuplicateThreshold {
					log.Debug("dropped near-duplicate synonym",
						slog.String("candidate_id", id.String()))
					continue
				}
				synonyms++
			}

			seenItems[id] = true
			seenTexts[key] = true
			picked = append(picked, Candidate{Item: item, Relation: tier, Text: text})
		}
	}

	if len(picked) < n {
		return nil, &InsufficientDataError{
			ItemID:       target.ID,
			QuestionType: questionType,
			Found:        len(picked),
			Required:     n,
		}
	}
	return picked, nil
}

// fetchRelated reads every ranked relation target once, concurrently.
func (s *DistractorSelector) fetchRelated(
	ctx context.Context,
	target *domain.LexicalItem,
) (map[uuid.UUID]*domain.LexicalItem, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var ids []uuid.UUID
	wanted := map[uuid.UUID]bool{target.ID: true}
	for _, tier := range tierOrder {
		for _, id := range target.RelationsOf(tier) {
			if wanted[id] {
				continue
			}
			wanted[id] = true
			ids = append(ids, id)
		}
	}

	results := make([]*domain.LexicalItem, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, id := range ids {
		g.Go(func() error {
			item, err := s.lexicon.GetItem(gctx, id)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn("skipping unavailable related item",
					slog.String("candidate_id", id.String()),
					slog.String("error", err.Error()))
				return nil
			}
			results[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make(map[uuid.UUID]*domain.LexicalItem, len(ids))
	for i, item := range results {
		if item != nil {
			items[ids[i]] = item
		}
	}
	return items, nil
}

// Jaccard returns the token-set similarity of two texts, 0 when either is empty.
func Jaccard(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for tok := range ta {
		if tb[tok] {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[tok] = true
	}
	return set
}
