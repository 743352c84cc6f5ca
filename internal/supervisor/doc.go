// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package supervisor provides process supervision for Marquee using suture v4.

# Overview

Services are organized into three layers:

	RootSupervisor ("marquee")
	├── DataSupervisor ("data-layer")
	│   └── RunLogGCService (if runlog.enabled)
	├── JobsSupervisor ("jobs-layer")
	│   ├── trigger:movie-average-rating
	│   ├── trigger:...
	│   └── trigger:user-top-matches
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (if server.enabled)

Each job trigger is its own service. A trigger whose job keeps panicking
outside of the harness (the harness itself recovers per item) is restarted
with backoff while its siblings keep firing.

# Usage Example

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}

	sched := schedule.NewScheduler(tree.Jobs())
	_ = sched.OnSchedule(job.Name(), "0 3 * * *", services.NewJobService(runner, job).Entrypoint())

	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("Supervisor stopped")
	}

# Configuration

Default values match suture's defaults:
  - FailureThreshold: 5 failures
  - FailureDecay: 30 seconds
  - FailureBackoff: 15 seconds
  - ShutdownTimeout: 10 seconds

# What Is NOT Supervised

The aggregate store and the run log are plain libraries owned by main; they
are opened before the tree starts and closed after it stops.

# See Also

  - internal/supervisor/services: service wrappers
  - internal/schedule: trigger services
  - https://pkg.go.dev/github.com/thejerf/suture/v4
*/
package supervisor
