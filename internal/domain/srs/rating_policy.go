package srs

import "github.com/phrazzld/scry-verify/internal/domain"

// RatingPolicy maps a binary outcome and response time onto a 0..4 rating.
// Wrong answers are always Again; faster correct answers rate higher.
type RatingPolicy struct {
	params RatingPolicyParams
}

// NewRatingPolicy creates a policy. Non-positive bands fall back to the defaults.
func NewRatingPolicy(params RatingPolicyParams) *RatingPolicy {
	defaults := NewDefaultRatingPolicyParams()
	if params.PerfectMaxMs <= 0 {
		params.PerfectMaxMs = defaults.PerfectMaxMs
	}
	if params.EasyMaxMs <= 0 {
		params.EasyMaxMs = defaults.EasyMaxMs
	}
	if params.GoodMaxMs <= 0 {
		params.GoodMaxMs = defaults.GoodMaxMs
	}
	return &RatingPolicy{params: params}
}

// Rate returns the rating for one answer.
func (p *RatingPolicy) Rate(correct bool, responseTimeMs int) domain.Rating {
	if !correct {
		return domain.RatingAgain
	}
	switch {
	case responseTimeMs <= p.params.PerfectMaxMs:
		return domain.RatingPerfect
	case responseTimeMs <= p.params.EasyMaxMs:
		return domain.RatingEasy
	case responseTimeMs <= p.params.GoodMaxMs:
		return domain.RatingGood
	default:
		return domain.RatingHard
	}
}
