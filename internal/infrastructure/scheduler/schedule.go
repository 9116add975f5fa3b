package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ParseSchedule parses the schedule notation used in configuration:
//   - "@every 5m"          - fixed interval
//   - "@hourly", "@daily"  - shortcuts for the matching cron expressions
//   - "*/10 * * * *"       - standard 5-field cron expression
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "":
		return nil, fmt.Errorf("empty schedule")
	case strings.HasPrefix(spec, "@every "):
		d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(spec, "@every ")))
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", spec, err)
		}
		if d < time.Second {
			return nil, fmt.Errorf("interval %s is shorter than one second", d)
		}
		return NewIntervalSchedule(d), nil
	case spec == "@hourly":
		return ParseCronExpression("0 * * * *")
	case spec == "@daily":
		return ParseCronExpression("0 0 * * *")
	}
	return ParseCronExpression(spec)
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERVAL
// ══════════════════════════════════════════════════════════════════════════════

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON
// ══════════════════════════════════════════════════════════════════════════════

// CronExpression is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
// Each field accepts *, */n, n, n-m, n-m/s and n,m,o.
type CronExpression struct {
	raw      string
	minutes  []int // 0-59
	hours    []int // 0-23
	days     []int // 1-31
	months   []int // 1-12
	weekdays []int // 0-6 (0 = Sunday)

	// day-of-month and day-of-week are OR-ed when both are restricted
	anyDay     bool
	anyWeekday bool
}

// ParseCronExpression parses a cron expression string.
func ParseCronExpression(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	ce := &CronExpression{
		raw:        expr,
		anyDay:     fields[2] == "*",
		anyWeekday: fields[4] == "*",
	}

	specs := []struct {
		name     string
		dst      *[]int
		min, max int
	}{
		{"minute", &ce.minutes, 0, 59},
		{"hour", &ce.hours, 0, 23},
		{"day", &ce.days, 1, 31},
		{"month", &ce.months, 1, 12},
		{"weekday", &ce.weekdays, 0, 6},
	}
	for i, spec := range specs {
		values, err := parseField(fields[i], spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", spec.name, err)
		}
		*spec.dst = values
	}

	return ce, nil
}

// parseField expands a comma separated list of terms into sorted values.
func parseField(field string, min, max int) ([]int, error) {
	set := make(map[int]struct{})
	for _, term := range strings.Split(field, ",") {
		if err := expandTerm(strings.TrimSpace(term), min, max, set); err != nil {
			return nil, err
		}
	}

	result := make([]int, 0, len(set))
	for v := range set {
		result = append(result, v)
	}
	sort.Ints(result)
	return result, nil
}

func expandTerm(term string, min, max int, set map[int]struct{}) error {
	if term == "" {
		return fmt.Errorf("empty term")
	}

	step := 1
	if base, stepStr, ok := strings.Cut(term, "/"); ok {
		s, err := strconv.Atoi(stepStr)
		if err != nil || s <= 0 {
			return fmt.Errorf("invalid step value: %s", stepStr)
		}
		step = s
		term = base
		if !strings.Contains(base, "-") && base != "*" {
			// "n/s" runs from n to the end of the range
			term = base + "-" + strconv.Itoa(max)
		}
	}

	start, end := min, max
	if term != "*" {
		if lo, hi, ok := strings.Cut(term, "-"); ok {
			var err error
			if start, err = strconv.Atoi(lo); err != nil {
				return fmt.Errorf("invalid range start: %s", lo)
			}
			if end, err = strconv.Atoi(hi); err != nil {
				return fmt.Errorf("invalid range end: %s", hi)
			}
		} else {
			v, err := strconv.Atoi(term)
			if err != nil {
				return fmt.Errorf("invalid value: %s", term)
			}
			start, end = v, v
		}
	}

	if start < min || end > max || start > end {
		return fmt.Errorf("value out of range [%d-%d]: %s", min, max, term)
	}
	for i := start; i <= end; i += step {
		set[i] = struct{}{}
	}
	return nil
}

// String returns the original cron expression.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next returns the first matching minute strictly after the given time, or
// the zero time if nothing matches within a year.
func (ce *CronExpression) Next(after time.Time) time.Time {
	t := after.Truncate(time.Minute).Add(time.Minute)

	const maxIterations = 366 * 24 * 60
	for i := 0; i < maxIterations; i++ {
		if ce.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func (ce *CronExpression) matches(t time.Time) bool {
	if !contains(ce.minutes, t.Minute()) || !contains(ce.hours, t.Hour()) || !contains(ce.months, int(t.Month())) {
		return false
	}

	dayOK := contains(ce.days, t.Day())
	weekdayOK := contains(ce.weekdays, int(t.Weekday()))
	switch {
	case ce.anyDay && ce.anyWeekday:
		return true
	case ce.anyDay:
		return weekdayOK
	case ce.anyWeekday:
		return dayOK
	default:
		return dayOK || weekdayOK
	}
}

func contains(slice []int, val int) bool {
	i := sort.SearchInts(slice, val)
	return i < len(slice) && slice[i] == val
}
