// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/marquee/internal/schedule"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints, then the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	validators := []func() error{
		c.validateDatabase,
		c.validateRunLog,
		c.validateJobs,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

// MinDatabaseConnections is the smallest DuckDB pool that serves
// batch.workers concurrent units of work: each holds a transaction while the
// run's id cursor stays open, and candidate reads need one more connection.
func (c *Config) MinDatabaseConnections() int {
	return c.Batch.Workers + 2
}

func (c *Config) validateDatabase() error {
	if c.Database.Backend != "duckdb" || c.Database.MaxConnections == 0 {
		return nil
	}
	if minConns := c.MinDatabaseConnections(); c.Database.MaxConnections < minConns {
		return fmt.Errorf("database.max_connections = %d is below %d (batch.workers + 2)",
			c.Database.MaxConnections, minConns)
	}
	return nil
}

func (c *Config) validateRunLog() error {
	if c.RunLog.Enabled && !c.RunLog.InMemory && c.RunLog.Path == "" {
		return errors.New("runlog.path is required when the run log is enabled and not in memory")
	}
	return nil
}

// validateJobs rejects unknown job names and enabled jobs whose schedule
// does not parse or never fires.
func (c *Config) validateJobs() error {
	loc := c.Location()
	for name, job := range c.Jobs {
		if !slices.Contains(JobNames, name) {
			return fmt.Errorf("jobs.%s: unknown job (known: %s)", name, strings.Join(JobNames, ", "))
		}
		if !job.Enabled {
			continue
		}
		if _, err := schedule.Parse(job.Schedule, loc); err != nil {
			return fmt.Errorf("jobs.%s.schedule: %w", name, err)
		}
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %v)", fe.Namespace(), rule, fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
