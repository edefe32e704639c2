package domain

import "fmt"

// AlgorithmType identifies the scheduling algorithm that owns a card's state.
type AlgorithmType string

// Known scheduler types.
const (
	AlgorithmRuleBased  AlgorithmType = "rule_based"
	AlgorithmModelBased AlgorithmType = "model_based"
)

// Valid reports whether t names a known scheduler.
func (t AlgorithmType) Valid() bool {
	return t == AlgorithmRuleBased || t == AlgorithmModelBased
}

// Rating is the 0..4 review quality fed to a scheduler.
type Rating int

// Review ratings, from total failure to effortless recall.
const (
	RatingAgain   Rating = 0
	RatingHard    Rating = 1
	RatingGood    Rating = 2
	RatingEasy    Rating = 3
	RatingPerfect Rating = 4
)

// Valid reports whether r is within 0..4.
func (r Rating) Valid() bool {
	return r >= RatingAgain && r <= RatingPerfect
}

// Passed reports whether the rating counts as a correct recall.
func (r Rating) Passed() bool {
	return r > RatingAgain
}

func (r Rating) String() string {
	switch r {
	case RatingAgain:
		return "again"
	case RatingHard:
		return "hard"
	case RatingGood:
		return "good"
	case RatingEasy:
		return "easy"
	case RatingPerfect:
		return "perfect"
	default:
		return fmt.Sprintf("rating(%d)", int(r))
	}
}

// MasteryLevel is a coarse progress bucket derived by the scheduler.
type MasteryLevel string

// Mastery levels in increasing order.
const (
	MasteryLearning MasteryLevel = "learning"
	MasteryFamiliar MasteryLevel = "familiar"
	MasteryKnown    MasteryLevel = "known"
	MasteryMastered MasteryLevel = "mastered"
)

// Rank orders mastery levels so callers can tell promotion from demotion.
func (m MasteryLevel) Rank() int {
	switch m {
	case MasteryFamiliar:
		return 1
	case MasteryKnown:
		return 2
	case MasteryMastered:
		return 3
	default:
		return 0
	}
}
