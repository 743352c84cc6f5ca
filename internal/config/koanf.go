// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/marquee/internal/affinity"
	"github.com/tomtom215/marquee/internal/jobs"
)

// DefaultConfigPaths lists where a config file is searched, first match wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/marquee/config.yaml",
	"/etc/marquee/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// JobNames lists every configurable job in dependency order.
var JobNames = []string{
	jobs.MovieReleasedStatus,
	jobs.MovieAverageRating,
	jobs.MovieCastAverageRating,
	jobs.MovieCrewAverageRating,
	jobs.PersonAverageByRoles,
	jobs.PersonAverageByMovies,
	jobs.MoviePredictedRating,
	affinity.JobName,
}

// defaultSchedules stagger dependent jobs: role averages settle before the
// person aggregates that read them, which settle before predictions.
var defaultSchedules = map[string]string{
	jobs.MovieReleasedStatus:    "5 0 * * *",
	jobs.MovieAverageRating:     "0 1 * * *",
	jobs.MovieCastAverageRating: "10 1 * * *",
	jobs.MovieCrewAverageRating: "20 1 * * *",
	jobs.PersonAverageByRoles:   "0 2 * * *",
	jobs.PersonAverageByMovies:  "15 2 * * *",
	jobs.MoviePredictedRating:   "0 3 * * *",
	affinity.JobName:            "30 3 * * *",
}

// defaultConfig returns the values applied before the config file and the
// environment.
func defaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Backend:   "memory",
			Path:      "./data/marquee.duckdb",
			MaxMemory: "1GB",
		},
		RunLog: RunLogConfig{
			Enabled:       true,
			Path:          "./data/runlog",
			Retention:     7 * 24 * time.Hour,
			MaxRunsPerJob: 200,
			GCInterval:    10 * time.Minute,
		},
		Lock: LockConfig{
			Backend:   "local",
			RedisAddr: "",
			TTL:       30 * time.Second,
			KeyPrefix: "marquee:lock:",
		},
		Server: ServerConfig{
			Enabled:          true,
			Host:             "0.0.0.0",
			Port:             8380,
			Timeout:          30 * time.Second,
			TriggerRateLimit: 10,
		},
		Batch: BatchConfig{
			Workers:      1,
			MaxFailedIDs: 100,
		},
		Matching: MatchingConfig{
			TopN:    affinity.DefaultTopN,
			Workers: 4,
		},
		Schedule: ScheduleConfig{
			Timezone: "UTC",
		},
		Jobs: make(map[string]JobConfig, len(JobNames)),
	}
	for _, name := range JobNames {
		cfg.Jobs[name] = JobConfig{
			Enabled:      true,
			Schedule:     defaultSchedules[name],
			RunOnStartup: name == jobs.MovieReleasedStatus,
		}
	}
	return cfg
}

// Load builds the configuration from defaults, then the optional config
// file, then mapped environment variables, and validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var envMappings = map[string]string{
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"database_backend":  "database.backend",
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",
	"duckdb_max_conns":  "database.max_connections",
	"seed_demo_data":    "database.seed_demo_data",

	"runlog_enabled":          "runlog.enabled",
	"runlog_path":             "runlog.path",
	"runlog_in_memory":        "runlog.in_memory",
	"runlog_retention":        "runlog.retention",
	"runlog_max_runs_per_job": "runlog.max_runs_per_job",
	"runlog_gc_interval":      "runlog.gc_interval",

	"lock_backend":    "lock.backend",
	"redis_addr":      "lock.redis_addr",
	"redis_password":  "lock.redis_password",
	"redis_db":        "lock.redis_db",
	"lock_ttl":        "lock.ttl",
	"lock_key_prefix": "lock.key_prefix",

	"http_enabled":       "server.enabled",
	"http_host":          "server.host",
	"http_port":          "server.port",
	"http_timeout":       "server.timeout",
	"trigger_rate_limit": "server.trigger_rate_limit",

	"batch_workers":          "batch.workers",
	"batch_items_per_second": "batch.items_per_second",
	"batch_max_failed_ids":   "batch.max_failed_ids",
	"batch_run_timeout":      "batch.run_timeout",

	"matching_top_n":   "matching.top_n",
	"matching_workers": "matching.workers",

	"schedule_timezone": "schedule.timezone",
}

// envTransformFunc maps environment variable names to koanf paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - DUCKDB_PATH -> database.path
//   - JOB_MOVIE_AVERAGE_RATING_SCHEDULE -> jobs.movie-average-rating.schedule
//
// Unmapped variables are dropped so unrelated environment does not leak
// into the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	if rest, ok := strings.CutPrefix(key, "job_"); ok {
		return jobEnvPath(rest)
	}
	return ""
}

func jobEnvPath(rest string) string {
	for _, field := range []string{"run_on_startup", "schedule", "enabled"} {
		prefix, ok := strings.CutSuffix(rest, "_"+field)
		if !ok {
			continue
		}
		name := strings.ReplaceAll(prefix, "_", "-")
		if _, known := defaultSchedules[name]; !known {
			return ""
		}
		return "jobs." + name + "." + field
	}
	return ""
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
