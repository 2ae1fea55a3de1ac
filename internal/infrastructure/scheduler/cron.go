package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronExpression is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
//
// Each field accepts *, n, n-m and a /step suffix on any of them, and
// comma-separated lists of those terms.
//
//   - "*/5 * * * *"  every 5 minutes
//   - "0 1 * * *"    every day at 01:00
//   - "0 0 * * 1-5"  weekdays at midnight
type CronExpression struct {
	raw      string
	minutes  uint64 // bits 0-59
	hours    uint64 // bits 0-23
	days     uint64 // bits 1-31
	months   uint64 // bits 1-12
	weekdays uint64 // bits 0-6, 0 = Sunday

	// Day-of-month and day-of-week are OR-ed when both are restricted.
	domStar bool
	dowStar bool
}

type fieldSpec struct {
	name     string
	min, max int
}

var cronFields = [5]fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// ParseCronExpression parses a cron expression string.
func ParseCronExpression(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	var masks [5]uint64
	for i, f := range fields {
		m, err := parseField(f, cronFields[i])
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
		masks[i] = m
	}

	return &CronExpression{
		raw:      expr,
		minutes:  masks[0],
		hours:    masks[1],
		days:     masks[2],
		months:   masks[3],
		weekdays: masks[4],
		domStar:  fields[2] == "*",
		dowStar:  fields[4] == "*",
	}, nil
}

// MustParseCronExpression parses a cron expression or panics.
// Use only for constants.
func MustParseCronExpression(expr string) *CronExpression {
	ce, err := ParseCronExpression(expr)
	if err != nil {
		panic(err)
	}
	return ce
}

func parseField(field string, spec fieldSpec) (uint64, error) {
	var mask uint64
	for _, term := range strings.Split(field, ",") {
		m, err := parseTerm(term, spec)
		if err != nil {
			return 0, err
		}
		mask |= m
	}
	return mask, nil
}

func parseTerm(term string, spec fieldSpec) (uint64, error) {
	rangePart, stepPart, hasStep := strings.Cut(term, "/")

	step := 1
	if hasStep {
		n, err := strconv.Atoi(stepPart)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%s: invalid step %q", spec.name, stepPart)
		}
		step = n
	}

	var lo, hi int
	switch {
	case rangePart == "*":
		lo, hi = spec.min, spec.max
	case strings.Contains(rangePart, "-"):
		a, b, _ := strings.Cut(rangePart, "-")
		var err error
		if lo, err = atoiIn(a, spec); err != nil {
			return 0, err
		}
		if hi, err = atoiIn(b, spec); err != nil {
			return 0, err
		}
		if lo > hi {
			return 0, fmt.Errorf("%s: empty range %q", spec.name, rangePart)
		}
	default:
		v, err := atoiIn(rangePart, spec)
		if err != nil {
			return 0, err
		}
		lo, hi = v, v
		if hasStep {
			hi = spec.max
		}
	}

	var mask uint64
	for v := lo; v <= hi; v += step {
		mask |= 1 << uint(v)
	}
	return mask, nil
}

func atoiIn(s string, spec fieldSpec) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid value %q", spec.name, s)
	}
	if v < spec.min || v > spec.max {
		return 0, fmt.Errorf("%s: %d out of range [%d-%d]", spec.name, v, spec.min, spec.max)
	}
	return v, nil
}

// String returns the original expression.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next returns the first matching minute strictly after t, or the zero time
// if nothing matches within five years (e.g. "0 0 31 2 *").
func (ce *CronExpression) Next(t time.Time) time.Time {
	t = t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !has(ce.months, int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !ce.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !has(ce.hours, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
			continue
		}
		if !has(ce.minutes, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

func (ce *CronExpression) dayMatches(t time.Time) bool {
	dom := has(ce.days, t.Day())
	dow := has(ce.weekdays, int(t.Weekday()))
	switch {
	case ce.domStar && ce.dowStar:
		return true
	case ce.domStar:
		return dow
	case ce.dowStar:
		return dom
	default:
		return dom || dow
	}
}

func has(mask uint64, v int) bool {
	return mask&(1<<uint(v)) != 0
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE PARSING
// ══════════════════════════════════════════════════════════════════════════════

// ParseSchedule accepts a cron expression, "@every <duration>", or one of
// the shorthands @hourly, @daily, @weekly.
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	switch spec {
	case "@hourly":
		spec = "0 * * * *"
	case "@daily", "@midnight":
		spec = "0 0 * * *"
	case "@weekly":
		spec = "0 0 * * 0"
	}

	if rest, ok := strings.CutPrefix(spec, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", rest, err)
		}
		s, err := NewIntervalSchedule(d)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	ce, err := ParseCronExpression(spec)
	if err != nil {
		return nil, err
	}
	return ce, nil
}
