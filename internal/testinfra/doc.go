// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package testinfra provides container fixtures for integration tests.
//
// Files here carry the integration build tag. Fixtures skip the calling test
// when no container runtime is reachable and tear down with t.Cleanup:
//
//	func TestRedisLocker_Integration(t *testing.T) {
//	    addr := testinfra.StartRedis(t)
//	    client := goredis.NewClient(&goredis.Options{Addr: addr})
//	    // ...
//	}
package testinfra
