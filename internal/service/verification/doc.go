// Package verification implements the verification workflow: creating a
// learner's card for an item and recording graded attempts.
//
// RecordAttempt is the engine's only multi-row write. It inserts the
// attempt, updates the question statistics, reschedules the card and counts
// the attempt toward migration eligibility in one transaction, then emits
// read-only events after the commit.
package verification
