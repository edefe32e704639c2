package config

import (
	"github.com/phrazzld/scry-verify/internal/domain/quality"
	"github.com/phrazzld/scry-verify/internal/domain/srs"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth" validate:"required"`
	Lexicon    LexiconConfig    `mapstructure:"lexicon" validate:"required"`
	SRS        SRSConfig        `mapstructure:"srs"`
	Assignment AssignmentConfig `mapstructure:"assignment" validate:"required"`
	Generation GenerationConfig `mapstructure:"generation" validate:"required"`
	Quality    QualityConfig    `mapstructure:"quality" validate:"required"`
	Sweep      SweepConfig      `mapstructure:"sweep" validate:"required"`
	Selector   SelectorConfig   `mapstructure:"selector" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error fatal"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	// Driver is "postgres" or "memory". The memory driver keeps all state in
	// process and is meant for local runs and demos.
	Driver                 string `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	URL                    string `mapstructure:"url" validate:"required_if=Driver postgres"`
	MaxOpenConns           int    `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes" validate:"gte=0"`
}

// AuthConfig contains the settings for validating learner access tokens.
// Tokens are issued by the account service; this service only verifies them.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
	// TokenLifetimeMinutes applies to tokens minted locally with -issue-token.
	TokenLifetimeMinutes int `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// LexiconConfig selects and tunes the read-only lexical store.
type LexiconConfig struct {
	// Driver is "sqlite" for a lexicon snapshot database or "memory" for a
	// JSON fixture file.
	Driver          string `mapstructure:"driver" validate:"required,oneof=sqlite memory"`
	Path            string `mapstructure:"path" validate:"required"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds" validate:"gte=0"`
	CacheSize       int    `mapstructure:"cache_size" validate:"gte=0"`
}

// SRSConfig overrides scheduler constants. Zero values keep the built-in defaults.
type SRSConfig struct {
	RuleBased    srs.RuleBasedParamsConfig  `mapstructure:"rule_based"`
	ModelBased   srs.ModelBasedParamsConfig `mapstructure:"model_based"`
	RatingPolicy srs.RatingPolicyParams     `mapstructure:"rating_policy"`
}

// AssignmentConfig controls the algorithm comparison.
type AssignmentConfig struct {
	MigrationThreshold int `mapstructure:"migration_threshold" validate:"required,gt=0"`
}

// GenerationConfig controls distractor selection and question assembly.
type GenerationConfig struct {
	DistractorCount        int     `mapstructure:"distractor_count" validate:"required,gte=1"`
	MaxSynonymDistractors  int     `mapstructure:"max_synonym_distractors" validate:"gte=0"`
	NearDuplicateThreshold float64 `mapstructure:"near_duplicate_threshold" validate:"gt=0,lte=1"`
}

// QualityConfig holds the statistics thresholds.
type QualityConfig struct {
	Thresholds   quality.Params `mapstructure:"thresholds"`
	QualityFloor float64        `mapstructure:"quality_floor" validate:"gte=0,lte=1"`
	// RecomputeInline derives metrics inside the attempt transaction once the
	// attempt threshold is reached. When false only the sweep recomputes.
	RecomputeInline bool `mapstructure:"recompute_inline"`
}

// SweepConfig controls the background statistics recalculation.
type SweepConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalSeconds int  `mapstructure:"interval_seconds" validate:"required,gt=0"`
	BatchSize       int  `mapstructure:"batch_size" validate:"required,gt=0"`
	MaxRetries      int  `mapstructure:"max_retries" validate:"gte=0"`
	RetryBaseMs     int  `mapstructure:"retry_base_ms" validate:"gte=1"`
	WorkerCount     int  `mapstructure:"worker_count" validate:"required,gt=0"`
	QueueSize       int  `mapstructure:"queue_size" validate:"required,gt=0"`
}

// SelectorConfig controls adaptive selection.
type SelectorConfig struct {
	DueBatchSize  int      `mapstructure:"due_batch_size" validate:"required,gt=0"`
	QuestionOrder []string `mapstructure:"question_order" validate:"required,min=1,dive,oneof=meaning usage discrimination"`
}
