// Package task runs background work on an in-memory queue drained by a
// worker pool. Its one task type recomputes question statistics; tasks come
// from the periodic sweep and from attempt.recorded events.
package task
