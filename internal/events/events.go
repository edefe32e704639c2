package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
)

// Event types emitted by the verification engine after a transaction commits.
const (
	// TypeAttemptRecorded is emitted once per stored attempt.
	TypeAttemptRecorded = "attempt.recorded"

	// TypeCardMasteryChanged is emitted when a review moves a card to another
	// mastery level.
	TypeCardMasteryChanged = "card.mastery_changed"

	// TypeCardLeechFlagged is emitted when a review sets the leech flag on a card.
	TypeCardLeechFlagged = "card.leech_flagged"
)

// Event is a read-only notification. The payload is serialized at creation,
// so handlers receive a snapshot and cannot reach the engine's state.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants
	Type string `json:"type"`

	// Payload contains the type-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates a new Event with the specified type and payload.
func NewEvent(eventType string, payload interface{}, now time.Time) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: now.UTC(),
	}, nil
}

// AttemptRecorded is the payload of TypeAttemptRecorded.
type AttemptRecorded struct {
	AttemptID          uuid.UUID             `json:"attempt_id"`
	LearnerID          uuid.UUID             `json:"learner_id"`
	QuestionID         uuid.UUID             `json:"question_id"`
	ItemID             uuid.UUID             `json:"item_id"`
	Correct            bool                  `json:"correct"`
	Rating             domain.Rating         `json:"rating"`
	AlgorithmType      domain.AlgorithmType  `json:"algorithm_type"`
	Context            domain.AttemptContext `json:"context"`
	NeedsRecalculation bool                  `json:"needs_recalculation"`
}

// CardMasteryChanged is the payload of TypeCardMasteryChanged.
type CardMasteryChanged struct {
	LearnerID uuid.UUID           `json:"learner_id"`
	ItemID    uuid.UUID           `json:"item_id"`
	From      domain.MasteryLevel `json:"from"`
	To        domain.MasteryLevel `json:"to"`
}

// CardLeechFlagged is the payload of TypeCardLeechFlagged.
type CardLeechFlagged struct {
	LearnerID      uuid.UUID `json:"learner_id"`
	ItemID         uuid.UUID `json:"item_id"`
	RecentFailures int       `json:"recent_failures"`
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *Event) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a function to the EventHandler interface.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent implements EventHandler.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// NopEmitter discards every event.
type NopEmitter struct{}

// EmitEvent implements EventEmitter.
func (NopEmitter) EmitEvent(context.Context, *Event) error { return nil }
