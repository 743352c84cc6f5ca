// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package main is the entry point for the Marquee job server.
//
// Marquee keeps the derived columns of a movie catalog current: average
// ratings for movies, cast and crew roles, and persons, predicted ratings,
// release status, and each user's top matches by rating similarity. Every
// job walks all ids of one entity type and updates each in its own unit of
// work.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, config file, then environment (Koanf v2)
//  2. Store: in-memory or DuckDB, optionally seeded with a demo catalog
//  3. Lock: process-local, or Redis when several instances share a store
//  4. Run log: BadgerDB history of finished runs
//  5. Jobs: one supervised service and one cron trigger per enabled job
//  6. HTTP Server: health, job status, manual triggers, match lists, metrics
//
// # Configuration
//
// Configuration is layered (highest priority wins):
//   - Environment variables (LOG_LEVEL, DATABASE_BACKEND, JOB_<NAME>_SCHEDULE, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. Running jobs stop between
// items, the HTTP server drains, and the stores are closed.
//
// # Example Usage
//
//	export DATABASE_BACKEND=duckdb
//	export DUCKDB_PATH=/data/marquee.duckdb
//	export JOB_USER_TOP_MATCHES_SCHEDULE="30 3 * * *"
//	./marquee
//
// Triggering a job by hand:
//
//	curl -X POST http://localhost:8380/api/v1/jobs/movie-average-rating/run
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/supervisor"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Service:   "marquee",
	})

	logging.Info().
		Str("version", version).
		Str("database", cfg.Database.Backend).
		Str("lock", cfg.Lock.Backend).
		Str("timezone", cfg.Schedule.Timezone).
		Msg("Starting Marquee")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer app.Close()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	if err := app.Register(tree); err != nil {
		logging.Fatal().Err(err).Msg("Failed to register services")
	}

	logging.Info().Msg("Starting supervisor tree...")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("name", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Marquee stopped")
}
