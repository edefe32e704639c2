package domain

import (
	"strings"

	"github.com/google/uuid"
)

// RelationType classifies an edge between two lexical items.
type RelationType string

// Relation types provided by the lexical store. RelationTarget is not a
// store relation; it labels the correct option in selection counters.
const (
	RelationSynonym    RelationType = "synonym"
	RelationAntonym    RelationType = "antonym"
	RelationConfusable RelationType = "confusable"
	RelationPhrase     RelationType = "phrase"
	RelationTarget     RelationType = "target"
)

// Relation points from one lexical item to another.
type Relation struct {
	Type         RelationType `json:"type"`
	TargetItemID uuid.UUID    `json:"target_item_id"`
}

// LexicalItem is one sense of a word. Items sharing a LexemeID are senses of
// the same lexeme.
type LexicalItem struct {
	ID              uuid.UUID  `json:"id"`
	LexemeID        uuid.UUID  `json:"lexeme_id"`
	Word            string     `json:"word"`
	Definition      string     `json:"definition"`
	ExampleSentence string     `json:"example_sentence"`
	Relations       []Relation `json:"relations"`
}

// SameLexeme reports whether other is another sense of the same word.
// Sharing a lexeme id or the surface form (case-insensitive) both count.
func (i *LexicalItem) SameLexeme(other *LexicalItem) bool {
	if i.LexemeID != uuid.Nil && i.LexemeID == other.LexemeID {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(i.Word), strings.TrimSpace(other.Word))
}

// RelationsOf returns the targets of every relation of the given type.
func (i *LexicalItem) RelationsOf(t RelationType) []uuid.UUID {
	var ids []uuid.UUID
	for _, r := range i.Relations {
		if r.Type == t {
			ids = append(ids, r.TargetItemID)
		}
	}
	return ids
}
