// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import "time"

// Config is the complete process configuration.
type Config struct {
	Logging  LoggingConfig        `koanf:"logging"`
	Database DatabaseConfig       `koanf:"database"`
	RunLog   RunLogConfig         `koanf:"runlog"`
	Lock     LockConfig           `koanf:"lock"`
	Server   ServerConfig         `koanf:"server"`
	Batch    BatchConfig          `koanf:"batch"`
	Matching MatchingConfig       `koanf:"matching"`
	Schedule ScheduleConfig       `koanf:"schedule"`
	Jobs     map[string]JobConfig `koanf:"jobs" validate:"dive"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level" validate:"oneof=trace debug info warn error"`

	// Format is json or console.
	// Default: json
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller includes caller file and line number in logs.
	Caller bool `koanf:"caller"`
}

// DatabaseConfig selects and tunes the aggregate store.
type DatabaseConfig struct {
	// Backend is memory or duckdb.
	Backend   string `koanf:"backend" validate:"oneof=memory duckdb"`
	Path      string `koanf:"path" validate:"required_if=Backend duckdb"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"min=0"` // 0 = DuckDB default

	// MaxConnections caps the connection pool; 0 sizes it from the CPU count
	// and batch.workers. Set explicitly it must be at least batch.workers + 2.
	MaxConnections int `koanf:"max_connections" validate:"min=0"`

	// SeedDemoData loads a small catalog into an empty store at startup.
	SeedDemoData bool `koanf:"seed_demo_data"`
}

// RunLogConfig holds run history settings.
type RunLogConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Path          string        `koanf:"path"`
	InMemory      bool          `koanf:"in_memory"`
	Retention     time.Duration `koanf:"retention" validate:"min=0"`
	MaxRunsPerJob int           `koanf:"max_runs_per_job" validate:"min=0"`
	GCInterval    time.Duration `koanf:"gc_interval" validate:"min=0"`
}

// LockConfig selects the non-reentrancy lock. local guards one process;
// redis guards every process sharing the Redis instance.
type LockConfig struct {
	Backend       string        `koanf:"backend" validate:"oneof=local redis"`
	RedisAddr     string        `koanf:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db" validate:"min=0"`
	TTL           time.Duration `koanf:"ttl" validate:"min=1s"`
	KeyPrefix     string        `koanf:"key_prefix"`
}

// ServerConfig holds the operational HTTP server settings.
type ServerConfig struct {
	Enabled bool          `koanf:"enabled"`
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`

	// TriggerRateLimit is manual trigger requests per minute per client.
	// Zero disables limiting.
	TriggerRateLimit int `koanf:"trigger_rate_limit" validate:"min=0"`
}

// BatchConfig tunes the job harness.
type BatchConfig struct {
	Workers        int     `koanf:"workers" validate:"min=1,max=256"`
	ItemsPerSecond float64 `koanf:"items_per_second" validate:"min=0"`
	MaxFailedIDs   int     `koanf:"max_failed_ids" validate:"min=0"`

	// RunTimeout bounds a single run. Zero means unbounded.
	RunTimeout time.Duration `koanf:"run_timeout" validate:"min=0"`
}

// MatchingConfig tunes the affinity matcher.
type MatchingConfig struct {
	TopN    int `koanf:"top_n" validate:"min=1,max=1000"`
	Workers int `koanf:"workers" validate:"min=1,max=256"`
}

// ScheduleConfig holds scheduler-wide settings.
type ScheduleConfig struct {
	// Timezone is the IANA zone cron specs are evaluated in.
	// Default: UTC
	Timezone string `koanf:"timezone" validate:"timezone"`
}

// JobConfig configures one job's trigger.
type JobConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Schedule     string `koanf:"schedule" validate:"required_if=Enabled true"`
	RunOnStartup bool   `koanf:"run_on_startup"`
}

// Location resolves Schedule.Timezone. Validation guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Addr returns the server listen address.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}
