// Package domain contains the core entities of the verification engine:
// per-learner card states, algorithm assignments, lexical items, questions,
// question statistics and attempt records. It is independent of any
// specific storage or delivery mechanism.
package domain
