// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package config loads Marquee's configuration with koanf.

# Configuration Sources

Layers are applied in order, later layers winning:

 1. Defaults (defaultConfig)
 2. YAML file: $CONFIG_PATH, else config.yaml / config.yml in the working
    directory, else /etc/marquee/
 3. Environment variables, through an explicit mapping table

# Jobs

Each job has a section under jobs.<name>:

	jobs:
	  movie-average-rating:
	    enabled: true
	    schedule: "0 1 * * *"
	    run_on_startup: false
	  user-top-matches:
	    schedule: "@every 6h"

The environment form is JOB_<NAME>_<FIELD> with the job name upper-cased
and dashes replaced by underscores, for example
JOB_USER_TOP_MATCHES_SCHEDULE=@hourly.

Schedules accept 5-field cron expressions, the @hourly/@daily/@weekly/
@monthly/@yearly macros and "@every <duration>". Every enabled job's
schedule is parsed during validation, so a bad spec fails at startup rather
than when the trigger starts.
*/
package config
