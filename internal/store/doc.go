// Package store defines the persistence interfaces of the verification
// engine: card states, algorithm assignments, questions, question statistics,
// the attempt log and the read-only lexical store. Implementations live in
// internal/platform.
package store
