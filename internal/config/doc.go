// Package config handles configuration loading, parsing, and validation
// from environment variables, an optional config.yaml and a local .env file.
// It provides type-safe access to server, database, lexicon, scheduler,
// question generation, statistics and sweep settings while keeping
// configuration details separate from business logic.
package config
