package generation

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
	"github.com/phrazzld/scry-verify/internal/store"
	"golang.org/x/crypto/blake2b"
)

// Blank replaces the target word in discrimination questions.
const Blank = "_____"

// Shuffler permutes n elements through swap, with the contract of rand.Shuffle.
type Shuffler func(n int, swap func(i, j int))

// AssemblerOption customizes an Assembler.
type AssemblerOption func(*Assembler)

// WithShuffler replaces the option shuffler.
func WithShuffler(shuffle Shuffler) AssemblerOption {
	return func(a *Assembler) {
		a.shuffle = shuffle
	}
}

// WithClock replaces the clock used for CreatedAt.
func WithClock(now func() time.Time) AssemblerOption {
	return func(a *Assembler) {
		a.now = now
	}
}

// Assembler builds multiple-choice questions for lexical items.
type Assembler struct {
	lexicon  store.LexicalStore
	selector *DistractorSelector
	shuffle  Shuffler
	now      func() time.Time
	logger   *slog.Logger
}

// NewAssembler creates an assembler. Options default to rand.Shuffle and time.Now.
func NewAssembler(
	lexicon store.LexicalStore,
	selector *DistractorSelector,
	logger *slog.Logger,
	opts ...AssemblerOption,
) *Assembler {
	if lexicon == nil {
		panic("lexicon cannot be nil")
	}
	if selector == nil {
		panic("selector cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Assembler{
		lexicon:  lexicon,
		selector: selector,
		shuffle:  rand.Shuffle,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "question_assembler")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble builds one question of the given archetype for itemID.
//
// The returned question is not persisted. An unreadable target yields a
// ContentUnavailableError; a target or pool lacking data yields an
// InsufficientDataError.
func (a *Assembler) Assemble(
	ctx context.Context,
	itemID uuid.UUID,
	questionType domain.QuestionType,
) (*domain.Question, error) {
	if !questionType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidQuestionType, questionType)
	}

	target, err := a.lexicon.GetItem(ctx, itemID)
	if err != nil {
		reason := "lookup failed"
		if store.IsNotFoundError(err) {
			reason = "item not found"
		}
		return nil, &ContentUnavailableError{ItemID: itemID, Reason: reason, Err: err}
	}

	switch questionType {
	case domain.QuestionUsage:
		return a.assembleUsage(ctx, target)
	case domain.QuestionDiscrimination:
		return a.assembleDiscrimination(ctx, target)
	default:
		return a.assembleMeaning(ctx, target)
	}
}

// AssembleWithFallback tries each archetype in order, moving on when one
// reports insufficient data. Any other error stops the walk. When every
// archetype lacks data the last InsufficientDataError is returned.
func (a *Assembler) AssembleWithFallback(
	ctx context.Context,
	itemID uuid.UUID,
	order []domain.QuestionType,
) (*domain.Question, error) {
	log := logger.FromContextOrDefault(ctx, a.logger)

	if len(order) == 0 {
		return nil, ErrNoQuestionTypes
	}

	var lastErr error
	for _, qt := range order {
		q, err := a.Assemble(ctx, itemID, qt)
		if err == nil {
			return q, nil
		}
		if !errors.Is(err, ErrInsufficientData) {
			return nil, err
		}
		log.Debug("question archetype lacks data, falling back",
			slog.String("item_id", itemID.String()),
			slog.String("question_type", string(qt)),
			slog.String("error", err.Error()))
		lastErr = err
	}
	return nil, lastErr
}

func (a *Assembler) assembleMeaning(ctx context.Context, target *domain.LexicalItem) (*domain.Question, error) {
	qt := domain.QuestionMeaning
	if err := requireFields(target, qt, FieldDefinition, FieldExampleSentence, FieldWord); err != nil {
		return nil, err
	}

	distractors, err := a.selector.Select(ctx, target, a.selector.Count(), FieldDefinition, qt)
	if err != nil {
		return nil, err
	}

	definition := FieldDefinition.Text(target)
	q := &domain.Question{
		TargetItemID:    target.ID,
		QuestionType:    qt,
		Prompt:          fmt.Sprintf("What does %q mean in this sentence?", target.Word),
		ContextSentence: FieldExampleSentence.Text(target),
		Options:         a.options(target, definition, distractors),
		Explanation: fmt.Sprintf("In this sentence %q means: %s",
			target.Word, definition),
	}
	return a.finish(q), nil
}

func (a *Assembler) assembleUsage(ctx context.Context, target *domain.LexicalItem) (*domain.Question, error) {
	qt := domain.QuestionUsage
	if err := requireFields(target, qt, FieldDefinition, FieldExampleSentence, FieldWord); err != nil {
		return nil, err
	}

	distractors, err := a.selector.Select(ctx, target, a.selector.Count(), FieldExampleSentence, qt)
	if err != nil {
		return nil, err
	}

	definition := FieldDefinition.Text(target)
	sentence := FieldExampleSentence.Text(target)
	q := &domain.Question{
		TargetItemID:    target.ID,
		QuestionType:    qt,
		Prompt:          fmt.Sprintf("Which sentence uses %q to mean: %s?", target.Word, definition),
		ContextSentence: usageContext(target.Word, definition),
		Options:         a.options(target, sentence, distractors),
		Explanation: fmt.Sprintf("%q shows %q meaning %s.",
			sentence, target.Word, definition),
	}
	return a.finish(q), nil
}

func (a *Assembler) assembleDiscrimination(ctx context.Context, target *domain.LexicalItem) (*domain.Question, error) {
	qt := domain.QuestionDiscrimination
	if err := requireFields(target, qt, FieldDefinition, FieldExampleSentence, FieldWord); err != nil {
		return nil, err
	}

	redacted, ok := Redact(target.ExampleSentence, target.Word)
	if !ok {
		return nil, &InsufficientDataError{
			ItemID:       target.ID,
			QuestionType: qt,
			Reason:       "example sentence does not contain the target word",
		}
	}

	distractors, err := a.selector.Select(ctx, target, a.selector.Count(), FieldWord, qt)
	if err != nil {
		return nil, err
	}

	word := FieldWord.Text(target)
	q := &domain.Question{
		TargetItemID:    target.ID,
		QuestionType:    qt,
		Prompt:          "Which word best completes the sentence?",
		ContextSentence: redacted,
		Options:         a.options(target, word, distractors),
		Explanation:     discriminationExplanation(target, distractors),
	}
	return a.finish(q), nil
}

// usageContext states the meaning being tested as a sentence. The example
// sentence is the answer of a usage question, so it cannot be the context.
func usageContext(word, definition string) string {
	return fmt.Sprintf("Here %q means %s.", word, strings.TrimRight(definition, ". "))
}

// options shuffles the correct text in with the distractors.
func (a *Assembler) options(target *domain.LexicalItem, correct string, distractors []Candidate) []domain.Option {
	opts := make([]domain.Option, 0, len(distractors)+1)
	opts = append(opts, domain.Option{
		Text:           correct,
		IsCorrect:      true,
		SourceItemID:   target.ID,
		SourceRelation: domain.RelationTarget,
	})
	for _, d := range distractors {
		opts = append(opts, domain.Option{
			Text:           d.Text,
			SourceItemID:   d.Item.ID,
			SourceRelation: d.Relation,
		})
	}
	a.shuffle(len(opts), func(i, j int) {
		opts[i], opts[j] = opts[j], opts[i]
	})
	return opts
}

// finish sets the id, correct index, fingerprint and timestamp.
func (a *Assembler) finish(q *domain.Question) *domain.Question {
	q.ID = uuid.New()
	for i, o := range q.Options {
		if o.IsCorrect {
			q.CorrectIndex = i
			break
		}
	}
	q.Fingerprint = Fingerprint(q)
	q.CreatedAt = a.now().UTC()
	return q
}

func discriminationExplanation(target *domain.LexicalItem, distractors []Candidate) string {
	var confused []string
	for _, d := range distractors {
		if d.Relation == domain.RelationConfusable {
			confused = append(confused, fmt.Sprintf("%q", d.Text))
		}
	}
	base := fmt.Sprintf("%q fits the blank: it means %s.", target.Word, FieldDefinition.Text(target))
	if len(confused) == 0 {
		return base + " The other options are related words that do not fit this sentence."
	}
	return fmt.Sprintf("%s It is commonly confused with %s.", base, strings.Join(confused, ", "))
}

func requireFields(target *domain.LexicalItem, qt domain.QuestionType, fields ...OptionField) error {
	for _, f := range fields {
		if f.Text(target) == "" {
			return &InsufficientDataError{
				ItemID:       target.ID,
				QuestionType: qt,
				Reason:       "target item is missing " + fieldName(f),
			}
		}
	}
	return nil
}

func fieldName(f OptionField) string {
	switch f {
	case FieldExampleSentence:
		return "an example sentence"
	case FieldWord:
		return "a word"
	default:
		return "a definition"
	}
}

// Redact replaces every whole-word, case-insensitive occurrence of word in
// sentence with Blank. It reports false when the word does not occur.
func Redact(sentence, word string) (string, bool) {
	word = strings.TrimSpace(word)
	if word == "" {
		return sentence, false
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	if !re.MatchString(sentence) {
		return sentence, false
	}
	return re.ReplaceAllLiteralString(sentence, Blank), true
}

// Fingerprint hashes the content of a question so identical questions can be
// recognized. Option order is part of the content.
func Fingerprint(q *domain.Question) string {
	var b strings.Builder
	b.WriteString(q.TargetItemID.String())
	b.WriteByte(0)
	b.WriteString(string(q.QuestionType))
	b.WriteByte(0)
	b.WriteString(q.Prompt)
	b.WriteByte(0)
	b.WriteString(q.ContextSentence)
	for _, o := range q.Options {
		b.WriteByte(0)
		b.WriteString(o.SourceItemID.String())
		b.WriteByte(0)
		b.WriteString(o.Text)
	}
	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
