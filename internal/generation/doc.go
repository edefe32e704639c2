// Package generation assembles multiple-choice questions from the read-only
// lexical store. DistractorSelector builds a filtered, ranked pool of wrong
// answers drawn from distinct lexical items, and Assembler turns that pool
// into one of three question archetypes (meaning, usage, discrimination).
//
// Other senses of the target word are removed from the candidate pool before
// any ranking happens, so a question about one sense can never offer a
// sibling sense as a wrong answer.
package generation
