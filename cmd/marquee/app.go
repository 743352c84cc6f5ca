// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/marquee/internal/affinity"
	"github.com/tomtom215/marquee/internal/api"
	"github.com/tomtom215/marquee/internal/batch"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/jobs"
	"github.com/tomtom215/marquee/internal/lock"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/runlog"
	"github.com/tomtom215/marquee/internal/schedule"
	"github.com/tomtom215/marquee/internal/store"
	"github.com/tomtom215/marquee/internal/store/memory"
	"github.com/tomtom215/marquee/internal/supervisor"
	"github.com/tomtom215/marquee/internal/supervisor/services"
)

// app owns the long-lived dependencies shared by every service.
type app struct {
	cfg     *config.Config
	store   store.Store
	locker  lock.Locker
	runLog  *runlog.Store
	runner  *batch.Runner
	jobs    map[string]batch.Job
	closers []namedCloser
}

type namedCloser struct {
	name string
	io.Closer
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	for _, open := range []func() error{
		func() error { return a.openStore(ctx) },
		func() error { return a.openLocker(ctx) },
		a.openRunLog,
	} {
		if err := open(); err != nil {
			a.Close()
			return nil, err
		}
	}

	var opts []batch.Option
	if a.runLog != nil {
		opts = append(opts, batch.WithRecorder(a.runLog))
	}
	a.runner = batch.NewRunner(a.store, a.locker, batch.Config{
		Workers:        cfg.Batch.Workers,
		ItemsPerSecond: cfg.Batch.ItemsPerSecond,
		MaxFailedIDs:   cfg.Batch.MaxFailedIDs,
	}, opts...)

	now := func() time.Time { return time.Now().UTC() }
	a.jobs = jobs.All(now)
	matcher := affinity.NewMatcher(a.store, affinity.Config{
		TopN:    cfg.Matching.TopN,
		Workers: cfg.Matching.Workers,
	}, now)
	a.jobs[affinity.JobName] = matcher.Job()

	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Database.Backend {
	case "duckdb":
		dbCfg := a.cfg.Database
		dbCfg.MaxConnections = database.PoolSize(dbCfg.MaxConnections, a.cfg.MinDatabaseConnections())
		db, err := database.New(&dbCfg)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		a.store = db
		a.closers = append(a.closers, namedCloser{"database", db})
	default:
		a.store = memory.New()
		logging.Warn().Msg("Using the in-memory store; aggregates are lost on restart")
	}

	if !a.cfg.Database.SeedDemoData {
		return nil
	}
	empty, err := isEmpty(ctx, a.store)
	if err != nil {
		return fmt.Errorf("failed to inspect store: %w", err)
	}
	if !empty {
		logging.Info().Msg("Store already holds movies, skipping demo seed")
		return nil
	}
	seeder, ok := a.store.(store.Seeder)
	if !ok {
		return fmt.Errorf("store backend %q cannot be seeded", a.cfg.Database.Backend)
	}
	if err := seeder.Seed(ctx, store.DemoDataset(time.Now().UTC())); err != nil {
		return fmt.Errorf("failed to seed demo data: %w", err)
	}
	logging.Info().Msg("Demo catalog seeded")
	return nil
}

// isEmpty reports whether the store has no movies.
func isEmpty(ctx context.Context, st store.Store) (bool, error) {
	for _, err := range st.IDs(ctx, models.EntityMovie) {
		return false, err
	}
	return true, nil
}

func (a *app) openLocker(ctx context.Context) error {
	if a.cfg.Lock.Backend != "redis" {
		a.locker = lock.NewLocalLocker()
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Lock.RedisAddr,
		Password: a.cfg.Lock.RedisPassword,
		DB:       a.cfg.Lock.RedisDB,
	})
	a.closers = append(a.closers, namedCloser{"redis", client})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis at %s: %w", a.cfg.Lock.RedisAddr, err)
	}

	a.locker = lock.NewRedisLocker(client, lock.RedisConfig{
		TTL:       a.cfg.Lock.TTL,
		KeyPrefix: a.cfg.Lock.KeyPrefix,
	})
	logging.Info().Str("addr", a.cfg.Lock.RedisAddr).Msg("Redis job lock enabled")
	return nil
}

func (a *app) openRunLog() error {
	if !a.cfg.RunLog.Enabled {
		logging.Info().Msg("Run log disabled; run history is kept in memory only")
		return nil
	}
	rlCfg := runlog.DefaultConfig()
	rlCfg.Path = a.cfg.RunLog.Path
	rlCfg.InMemory = a.cfg.RunLog.InMemory
	rlCfg.Retention = a.cfg.RunLog.Retention
	rlCfg.MaxRunsPerJob = a.cfg.RunLog.MaxRunsPerJob

	rl, err := runlog.Open(rlCfg)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	a.runLog = rl
	a.closers = append(a.closers, namedCloser{"run log", rl})
	return nil
}

// Register adds every service to the tree: one JobService and one cron
// trigger per enabled job, the run log GC, and the HTTP server.
func (a *app) Register(tree *supervisor.SupervisorTree) error {
	sched := schedule.NewScheduler(tree.Jobs(), schedule.WithLocation(a.cfg.Location()))

	var controls []api.JobControl
	for _, name := range config.JobNames {
		jobCfg := a.cfg.Jobs[name]
		if !jobCfg.Enabled {
			logging.Info().Str("job", name).Msg("Job disabled")
			continue
		}
		job, ok := a.jobs[name]
		if !ok {
			return fmt.Errorf("job %q is configured but not implemented", name)
		}

		svc := services.NewJobService(a.runner, job, services.WithRunTimeout(a.cfg.Batch.RunTimeout))
		tree.AddJobService(svc)
		if err := sched.OnSchedule(name, jobCfg.Schedule, svc.Fire, schedule.RunOnStartup(jobCfg.RunOnStartup)); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", name, err)
		}
		controls = append(controls, svc)

		logging.Info().
			Str("job", name).
			Str("schedule", jobCfg.Schedule).
			Bool("run_on_startup", jobCfg.RunOnStartup).
			Msg("Job scheduled")
	}

	if a.runLog != nil {
		tree.AddDataService(services.NewRunLogGCService(a.runLog, a.cfg.RunLog.GCInterval))
	}

	if !a.cfg.Server.Enabled {
		return nil
	}
	routerCfg := api.Config{
		Jobs:             controls,
		Schedules:        sched,
		Store:            a.store,
		Version:          version,
		TriggerRateLimit: a.cfg.Server.TriggerRateLimit,
	}
	if a.runLog != nil {
		routerCfg.History = a.runLog
	}
	server := &http.Server{
		Handler:           api.NewRouter(routerCfg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       a.cfg.Server.Timeout,
		WriteTimeout:      a.cfg.Server.Timeout,
		IdleTimeout:       2 * a.cfg.Server.Timeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, a.cfg.Server.Addr(), 0))
	logging.Info().Str("addr", a.cfg.Server.Addr()).Msg("HTTP server configured")
	return nil
}

// Close releases stores in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.Close(); err != nil {
			logging.Error().Err(err).Str("resource", c.name).Msg("Error closing resource")
		}
	}
	a.closers = nil
}
