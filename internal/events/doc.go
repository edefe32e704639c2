// Package events carries post-commit notifications out of the verification
// engine.
//
// Services emit an Event after their transaction commits: attempt.recorded,
// card.mastery_changed and card.leech_flagged. Payloads are serialized when
// the event is built, so handlers (analytics, gamification, the recalculation
// task handler) observe a snapshot and have no path back into core state.
package events
