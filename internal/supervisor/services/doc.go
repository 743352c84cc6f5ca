// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package services provides suture.Service wrappers for Marquee components.

Each wrapper translates a component's lifecycle into suture's context-aware
Serve pattern and implements fmt.Stringer so supervisor events name it.

# Available Services

JobService:
  - Owns one job's entrypoint; Fire is registered with the scheduler
  - Runs manual submissions from the API on its own goroutine
  - Refuses overlapping runs of the same job in-process

RunLogGCService:
  - Periodic Badger value-log GC for the run history store

HTTPServerService:
  - Binds the listener, serves, and shuts down gracefully on cancel

# Return Semantics

  - ctx.Err(): shutdown requested
  - other error: crash, suture restarts with backoff
*/
package services
