// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package schedule

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"time"
)

// ErrNeverFires is returned for expressions no calendar date satisfies,
// such as "0 0 30 2 *".
var ErrNeverFires = errors.New("schedule never fires")

// Schedule yields successive activation times.
type Schedule interface {
	// Next returns the first activation strictly after t, or the zero time
	// when there is none.
	Next(t time.Time) time.Time
	String() string
}

// macros are the named shorthands accepted in place of five fields.
var macros = map[string]string{
	"@hourly":   "0 * * * *",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@weekly":   "0 0 * * 0",
	"@monthly":  "0 0 1 * *",
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
}

// Parse reads a schedule spec. Accepted forms:
//
//	"@every 15m"      fixed interval, any time.ParseDuration value
//	"@daily"          named shorthand (@hourly @daily @midnight @weekly @monthly @yearly)
//	"*/15 2-4 * * 1"  standard five cron fields: minute hour day-of-month month day-of-week
//
// Cron fields support *, n, n-m, lists, */s and n-m/s. Day-of-week 7 is
// Sunday, same as 0. Cron specs are evaluated in loc (UTC when nil).
func Parse(spec string, loc *time.Location) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("empty schedule")
	}

	if rest, ok := strings.CutPrefix(spec, "@every"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", spec, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("interval must be positive, got %s", d)
		}
		return Every(d), nil
	}

	expr := spec
	if strings.HasPrefix(spec, "@") {
		m, ok := macros[spec]
		if !ok {
			return nil, fmt.Errorf("unknown schedule shorthand %q", spec)
		}
		expr = m
	}

	c, err := ParseCron(expr, loc)
	if err != nil {
		return nil, err
	}
	c.spec = spec
	return c, nil
}

// Every is a fixed-interval schedule.
type Every time.Duration

// Next implements Schedule.
func (e Every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

func (e Every) String() string {
	return "@every " + time.Duration(e).String()
}

// field is a bitset of permitted values for one cron position.
type field uint64

func (f field) has(v int) bool {
	return f&(1<<uint(v)) != 0
}

func (f field) count() int {
	return bits.OnesCount64(uint64(f))
}

// Cron is a parsed five-field expression.
type Cron struct {
	spec    string
	loc     *time.Location
	minute  field
	hour    field
	dom     field
	month   field
	dow     field
	domStar bool
	dowStar bool
}

// ParseCron parses a standard five-field cron expression.
func ParseCron(expr string, loc *time.Location) (*Cron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
	if loc == nil {
		loc = time.UTC
	}

	c := &Cron{spec: expr, loc: loc}
	var err error

	if c.minute, err = parseField(fields[0], 0, 59); err != nil {
		return nil, fmt.Errorf("invalid minute field: %w", err)
	}
	if c.hour, err = parseField(fields[1], 0, 23); err != nil {
		return nil, fmt.Errorf("invalid hour field: %w", err)
	}
	if c.dom, err = parseField(fields[2], 1, 31); err != nil {
		return nil, fmt.Errorf("invalid day-of-month field: %w", err)
	}
	if c.month, err = parseField(fields[3], 1, 12); err != nil {
		return nil, fmt.Errorf("invalid month field: %w", err)
	}
	if c.dow, err = parseField(fields[4], 0, 7); err != nil {
		return nil, fmt.Errorf("invalid day-of-week field: %w", err)
	}
	if c.dow.has(7) {
		c.dow = (c.dow &^ (1 << 7)) | 1
	}
	c.domStar = fields[2] == "*" || (strings.HasPrefix(fields[2], "*/") && c.dom.count() == 31)
	c.dowStar = fields[4] == "*" || (strings.HasPrefix(fields[4], "*/") && c.dow.count() == 7)

	// a leap-year reference makes Feb 29 reachable
	ref := time.Date(2000, 1, 1, 0, 0, 0, 0, loc)
	if c.Next(ref).IsZero() {
		return nil, fmt.Errorf("%q: %w", expr, ErrNeverFires)
	}
	return c, nil
}

func (c *Cron) String() string {
	return c.spec
}

// Next implements Schedule. It skips whole months, days and hours that
// cannot match instead of stepping minute by minute.
func (c *Cron) Next(t time.Time) time.Time {
	loc := c.loc
	t = t.In(loc)
	t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc).Add(time.Minute)

	// five years covers every satisfiable month/day combination
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !c.month.has(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
			continue
		}
		if !c.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if !c.hour.has(t.Hour()) {
			next := time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
			if !next.After(t) {
				// DST fold; step in absolute time instead
				next = t.Add(time.Hour).Truncate(time.Hour)
			}
			t = next
			continue
		}
		if !c.minute.has(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

// dayMatches applies the usual cron rule: when both day fields are
// restricted, either one matching is enough.
func (c *Cron) dayMatches(t time.Time) bool {
	domMatch := c.dom.has(t.Day())
	dowMatch := c.dow.has(int(t.Weekday()))

	switch {
	case c.domStar && c.dowStar:
		return true
	case c.domStar:
		return dowMatch
	case c.dowStar:
		return domMatch
	}
	return domMatch || dowMatch
}

// parseField parses one cron position into a bitset.
func parseField(s string, lo, hi int) (field, error) {
	var f field
	for _, part := range strings.Split(s, ",") {
		p, err := parseFieldPart(part, lo, hi)
		if err != nil {
			return 0, err
		}
		f |= p
	}
	return f, nil
}

// parseFieldPart parses one comma-free term: *, n, n-m, with optional /step.
func parseFieldPart(part string, lo, hi int) (field, error) {
	if part == "" {
		return 0, errors.New("empty value")
	}

	rangePart, stepPart, hasStep := strings.Cut(part, "/")
	step := 1
	if hasStep {
		var err error
		step, err = strconv.Atoi(stepPart)
		if err != nil || step <= 0 {
			return 0, fmt.Errorf("invalid step value: %s", stepPart)
		}
	}

	var start, end int
	switch {
	case rangePart == "*":
		start, end = lo, hi
	case strings.Contains(rangePart, "-"):
		a, b, _ := strings.Cut(rangePart, "-")
		var err error
		if start, err = strconv.Atoi(a); err != nil {
			return 0, fmt.Errorf("invalid range start: %s", a)
		}
		if end, err = strconv.Atoi(b); err != nil {
			return 0, fmt.Errorf("invalid range end: %s", b)
		}
		if start > end {
			return 0, fmt.Errorf("invalid range: %d-%d", start, end)
		}
	default:
		v, err := strconv.Atoi(rangePart)
		if err != nil {
			return 0, fmt.Errorf("invalid value: %s", rangePart)
		}
		start, end = v, v
		if hasStep {
			end = hi
		}
	}

	if start < lo || end > hi {
		return 0, fmt.Errorf("value out of range: %s (min=%d, max=%d)", rangePart, lo, hi)
	}

	var f field
	for v := start; v <= end; v += step {
		f |= 1 << uint(v)
	}
	return f, nil
}
