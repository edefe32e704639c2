package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// SCRY_DATABASE_URL for database.url.
const EnvPrefix = "SCRY"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// A .env file in the working directory is loaded into the environment first
// when present.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the struct tags of a populated configuration.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// setDefaults registers every key so that AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime_minutes", 5)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("lexicon.driver", "sqlite")
	v.SetDefault("lexicon.path", "lexicon.db")
	v.SetDefault("lexicon.cache_ttl_seconds", 300)
	v.SetDefault("lexicon.cache_size", 10000)

	v.SetDefault("srs.rule_based.max_interval_days", 3650)
	v.SetDefault("srs.model_based.desired_retention", 0.9)
	v.SetDefault("srs.model_based.max_interval_days", 3650)
	v.SetDefault("srs.rating_policy.perfect_max_ms", 1500)
	v.SetDefault("srs.rating_policy.easy_max_ms", 4000)
	v.SetDefault("srs.rating_policy.good_max_ms", 10000)

	v.SetDefault("assignment.migration_threshold", 100)

	v.SetDefault("generation.distractor_count", 3)
	v.SetDefault("generation.max_synonym_distractors", 1)
	v.SetDefault("generation.near_duplicate_threshold", 0.5)

	v.SetDefault("quality.thresholds.min_attempts", 5)
	v.SetDefault("quality.thresholds.too_difficult_below", 0.2)
	v.SetDefault("quality.thresholds.too_easy_above", 0.9)
	v.SetDefault("quality.thresholds.low_discrimination_below", 0.2)
	v.SetDefault("quality.thresholds.discrimination_weight", 0.5)
	v.SetDefault("quality.quality_floor", 0.3)
	v.SetDefault("quality.recompute_inline", true)

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval_seconds", 300)
	v.SetDefault("sweep.batch_size", 200)
	v.SetDefault("sweep.max_retries", 3)
	v.SetDefault("sweep.retry_base_ms", 50)
	v.SetDefault("sweep.worker_count", 2)
	v.SetDefault("sweep.queue_size", 500)

	v.SetDefault("selector.due_batch_size", 20)
	v.SetDefault("selector.question_order", []string{"meaning", "usage", "discrimination"})
}
