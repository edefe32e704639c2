package srs

import (
	"github.com/phrazzld/scry-verify/internal/domain"
)

// ratingCount is the number of distinct ratings (0..4).
const ratingCount = 5

// RuleBasedParams defines all configurable parameters for the rule-based scheduler
type RuleBasedParams struct {
	// Core limits
	InitialEaseFactor float64
	MinEaseFactor     float64
	MaxEaseFactor     float64
	MaxIntervalDays   int

	// Adjustments indexed by rating
	EaseFactorAdjustment [ratingCount]float64
	IntervalModifier     [ratingCount]float64

	// Mastery thresholds on consecutive correct answers
	FamiliarStreak   int
	KnownStreak      int
	MasteredStreak   int
	MasteredInterval int
}

// RuleBasedParamsConfig allows overriding the default parameters. Zero values
// keep the defaults.
type RuleBasedParamsConfig struct {
	InitialEaseFactor float64 `mapstructure:"initial_ease_factor"`
	MinEaseFactor     float64 `mapstructure:"min_ease_factor"`
	MaxEaseFactor     float64 `mapstructure:"max_ease_factor"`
	MaxIntervalDays   int     `mapstructure:"max_interval_days"`

	AgainEaseFactorAdjustment   float64 `mapstructure:"again_ease_factor_adjustment"`
	HardEaseFactorAdjustment    float64 `mapstructure:"hard_ease_factor_adjustment"`
	EasyEaseFactorAdjustment    float64 `mapstructure:"easy_ease_factor_adjustment"`
	PerfectEaseFactorAdjustment float64 `mapstructure:"perfect_ease_factor_adjustment"`

	HardIntervalModifier    float64 `mapstructure:"hard_interval_modifier"`
	EasyIntervalModifier    float64 `mapstructure:"easy_interval_modifier"`
	PerfectIntervalModifier float64 `mapstructure:"perfect_interval_modifier"`
}

// NewDefaultRuleBasedParams creates rule-based parameters with default values
func NewDefaultRuleBasedParams() *RuleBasedParams {
	return &RuleBasedParams{
		InitialEaseFactor: 2.5,
		MinEaseFactor:     1.3,
		MaxEaseFactor:     2.5,
		MaxIntervalDays:   3650,

		EaseFactorAdjustment: [ratingCount]float64{
			domain.RatingAgain:   -0.20,
			domain.RatingHard:    -0.15,
			domain.RatingGood:    0.0,
			domain.RatingEasy:    0.15,
			domain.RatingPerfect: 0.20,
		},

		// Good uses the ease factor directly; Easy and Perfect multiply it.
		// Hard is a fixed multiplier independent of the ease factor.
		IntervalModifier: [ratingCount]float64{
			domain.RatingAgain:   0.0,
			domain.RatingHard:    1.2,
			domain.RatingGood:    1.0,
			domain.RatingEasy:    1.3,
			domain.RatingPerfect: 1.5,
		},

		FamiliarStreak:   1,
		KnownStreak:      3,
		MasteredStreak:   6,
		MasteredInterval: 30,
	}
}

// NewRuleBasedParams creates rule-based parameters with custom configuration
func NewRuleBasedParams(config RuleBasedParamsConfig) *RuleBasedParams {
	params := NewDefaultRuleBasedParams()

	if config.InitialEaseFactor > 0 {
		params.InitialEaseFactor = config.InitialEaseFactor
	}
	if config.MinEaseFactor > 0 {
		params.MinEaseFactor = config.MinEaseFactor
	}
	if config.MaxEaseFactor > 0 {
		params.MaxEaseFactor = config.MaxEaseFactor
	}
	if config.MaxIntervalDays > 0 {
		params.MaxIntervalDays = config.MaxIntervalDays
	}

	if config.AgainEaseFactorAdjustment != 0 {
		params.EaseFactorAdjustment[domain.RatingAgain] = config.AgainEaseFactorAdjustment
	}
	if config.HardEaseFactorAdjustment != 0 {
		params.EaseFactorAdjustment[domain.RatingHard] = config.HardEaseFactorAdjustment
	}
	if config.EasyEaseFactorAdjustment != 0 {
		params.EaseFactorAdjustment[domain.RatingEasy] = config.EasyEaseFactorAdjustment
	}
	if config.PerfectEaseFactorAdjustment != 0 {
		params.EaseFactorAdjustment[domain.RatingPerfect] = config.PerfectEaseFactorAdjustment
	}

	if config.HardIntervalModifier > 0 {
		params.IntervalModifier[domain.RatingHard] = config.HardIntervalModifier
	}
	if config.EasyIntervalModifier > 0 {
		params.IntervalModifier[domain.RatingEasy] = config.EasyIntervalModifier
	}
	if config.PerfectIntervalModifier > 0 {
		params.IntervalModifier[domain.RatingPerfect] = config.PerfectIntervalModifier
	}

	return params
}

// ModelBasedParams holds the tunable constants of the memory model. None of
// these values is a behavioral contract; they are calibration inputs.
type ModelBasedParams struct {
	// Forgetting curve R(t, S) = (1 + Factor*t/S)^Decay
	Decay              float64
	ReferenceRetention float64
	DesiredRetention   float64
	MaxIntervalDays    int

	// First review
	InitialStability  [ratingCount]float64
	InitialDifficulty float64

	// Recall stability growth
	GrowthWeight       float64
	SaturationExponent float64
	RetentionGain      float64
	RatingBonus        [ratingCount]float64

	// Lapse stability
	LapseWeight             float64
	LapseDifficultyExponent float64
	LapseStabilityExponent  float64
	LapseRetentionGain      float64
	MaxLapseRatio           float64
	MinStability            float64

	// Difficulty update
	DifficultyStep float64
	MeanReversion  float64

	// Mastery thresholds on stability (days)
	FamiliarStability float64
	KnownStability    float64
	MasteredStability float64
	MasteredInterval  int
}

// ModelBasedParamsConfig allows overriding the model constants. Zero values
// keep the defaults.
type ModelBasedParamsConfig struct {
	Decay              float64   `mapstructure:"decay"`
	ReferenceRetention float64   `mapstructure:"reference_retention"`
	DesiredRetention   float64   `mapstructure:"desired_retention"`
	MaxIntervalDays    int       `mapstructure:"max_interval_days"`
	InitialStability   []float64 `mapstructure:"initial_stability"`
	InitialDifficulty  float64   `mapstructure:"initial_difficulty"`
	GrowthWeight       float64   `mapstructure:"growth_weight"`
	SaturationExponent float64   `mapstructure:"saturation_exponent"`
	RetentionGain      float64   `mapstructure:"retention_gain"`
	LapseWeight        float64   `mapstructure:"lapse_weight"`
	MaxLapseRatio      float64   `mapstructure:"max_lapse_ratio"`
	MinStability       float64   `mapstructure:"min_stability"`
	DifficultyStep     float64   `mapstructure:"difficulty_step"`
	MeanReversion      float64   `mapstructure:"mean_reversion"`
}

// NewDefaultModelBasedParams creates model parameters with default values
func NewDefaultModelBasedParams() *ModelBasedParams {
	return &ModelBasedParams{
		Decay:              -0.5,
		ReferenceRetention: 0.9,
		DesiredRetention:   0.9,
		MaxIntervalDays:    3650,

		InitialStability: [ratingCount]float64{
			domain.RatingAgain:   0.4,
			domain.RatingHard:    1.2,
			domain.RatingGood:    3.1,
			domain.RatingEasy:    7.9,
			domain.RatingPerfect: 15.0,
		},
		InitialDifficulty: 0.5,

		GrowthWeight:       1.49,
		SaturationExponent: 0.14,
		RetentionGain:      0.94,
		RatingBonus: [ratingCount]float64{
			domain.RatingAgain:   0,
			domain.RatingHard:    0.5,
			domain.RatingGood:    1.0,
			domain.RatingEasy:    1.3,
			domain.RatingPerfect: 1.6,
		},

		LapseWeight:             2.18,
		LapseDifficultyExponent: 0.05,
		LapseStabilityExponent:  0.34,
		LapseRetentionGain:      1.26,
		MaxLapseRatio:           0.5,
		MinStability:            0.1,

		DifficultyStep: 0.1,
		MeanReversion:  0.05,

		FamiliarStability: 2,
		KnownStability:    10,
		MasteredStability: 45,
		MasteredInterval:  30,
	}
}

// NewModelBasedParams creates model parameters with custom configuration
func NewModelBasedParams(config ModelBasedParamsConfig) *ModelBasedParams {
	params := NewDefaultModelBasedParams()

	if config.Decay < 0 {
		params.Decay = config.Decay
	}
	if config.ReferenceRetention > 0 && config.ReferenceRetention < 1 {
		params.ReferenceRetention = config.ReferenceRetention
	}
	if config.DesiredRetention > 0 && config.DesiredRetention < 1 {
		params.DesiredRetention = config.DesiredRetention
	}
	if config.MaxIntervalDays > 0 {
		params.MaxIntervalDays = config.MaxIntervalDays
	}
	if len(config.InitialStability) == ratingCount {
		copy(params.InitialStability[:], config.InitialStability)
	}
	if config.InitialDifficulty > 0 && config.InitialDifficulty < 1 {
		params.InitialDifficulty = config.InitialDifficulty
	}
	if config.GrowthWeight > 0 {
		params.GrowthWeight = config.GrowthWeight
	}
	if config.SaturationExponent > 0 {
		params.SaturationExponent = config.SaturationExponent
	}
	if config.RetentionGain > 0 {
		params.RetentionGain = config.RetentionGain
	}
	if config.LapseWeight > 0 {
		params.LapseWeight = config.LapseWeight
	}
	if config.MaxLapseRatio > 0 && config.MaxLapseRatio < 1 {
		params.MaxLapseRatio = config.MaxLapseRatio
	}
	if config.MinStability > 0 {
		params.MinStability = config.MinStability
	}
	if config.DifficultyStep > 0 {
		params.DifficultyStep = config.DifficultyStep
	}
	if config.MeanReversion > 0 && config.MeanReversion < 1 {
		params.MeanReversion = config.MeanReversion
	}

	return params
}

// RatingPolicyParams maps response time on a correct answer to a rating.
type RatingPolicyParams struct {
	PerfectMaxMs int `mapstructure:"perfect_max_ms"`
	EasyMaxMs    int `mapstructure:"easy_max_ms"`
	GoodMaxMs    int `mapstructure:"good_max_ms"`
}

// NewDefaultRatingPolicyParams returns the default response time bands.
func NewDefaultRatingPolicyParams() RatingPolicyParams {
	return RatingPolicyParams{
		PerfectMaxMs: 1500,
		EasyMaxMs:    4000,
		GoodMaxMs:    10000,
	}
}
