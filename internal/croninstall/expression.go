package croninstall

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts the standard 5-field syntax plus robfig's built-in
// descriptors (@yearly, @monthly, @weekly, @daily, @hourly, @every
// <duration>) plus Clodputer's own named macros.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// macroAliases are extended macros beyond robfig's builtin descriptor
// set, expanded to an equivalent 5-field expression before parsing.
var macroAliases = map[string]string{
	"@workdays": "0 0 * * 1-5",
	"@weekends": "0 0 * * 0,6",
}

// expandMacro rewrites Clodputer's own extended macros into a form the
// underlying cron parser understands. Robfig's own descriptors (@hourly,
// @daily, @weekly, @every ...) pass through unchanged.
func expandMacro(expr string) string {
	if expanded, ok := macroAliases[strings.TrimSpace(expr)]; ok {
		return expanded
	}
	return expr
}

// ValidateExpression reports whether expr is parseable, after macro
// expansion.
func ValidateExpression(expr string) error {
	_, err := parseSchedule(expr)
	return err
}

func parseSchedule(expr string) (cron.Schedule, error) {
	sched, err := parser.Parse(expandMacro(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// NextRuns returns the next n fire times for expr starting strictly after
// from, in the given timezone (UTC if tz is empty).
func NextRuns(expr, tz string, n int, from time.Time) ([]time.Time, error) {
	sched, err := parseSchedule(expr)
	if err != nil {
		return nil, err
	}
	loc := time.UTC
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
		loc = l
	}

	t := from.In(loc)
	runs := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		runs = append(runs, t)
	}
	return runs, nil
}

// crontabLine converts expr into the literal 5-field expression to embed
// in the generated crontab entry. Real cron daemons understand neither
// Clodputer's extended macros nor robfig's "@every" descriptor, so both
// must be resolved to standard syntax before the line is written.
func crontabLine(expr string) (string, error) {
	trimmed := strings.TrimSpace(expr)
	if expanded, ok := macroAliases[trimmed]; ok {
		return expanded, nil
	}
	if strings.HasPrefix(trimmed, "@every") {
		return intervalToCron(trimmed)
	}
	switch trimmed {
	case "@yearly", "@annually":
		return "0 0 1 1 *", nil
	case "@monthly":
		return "0 0 1 * *", nil
	case "@weekly":
		return "0 0 * * 0", nil
	case "@daily", "@midnight":
		return "0 0 * * *", nil
	case "@hourly":
		return "0 * * * *", nil
	}
	// Already standard 5-field syntax: validate it parses, then use as-is.
	if _, err := parser.Parse(trimmed); err != nil {
		return "", fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return trimmed, nil
}

// intervalToCron converts "@every <duration>" into an equivalent 5-field
// step expression, when the interval evenly divides a minute/hour
// boundary. An interval that doesn't (e.g. 7m, 90s) has no exact 5-field
// equivalent, since standard cron has no sub-minute or non-divisor step
// syntax, so it is rejected rather than silently approximated.
func intervalToCron(expr string) (string, error) {
	durStr := strings.TrimSpace(strings.TrimPrefix(expr, "@every"))
	d, err := time.ParseDuration(durStr)
	if err != nil {
		return "", fmt.Errorf("invalid @every duration %q: %w", durStr, err)
	}
	if d <= 0 {
		return "", fmt.Errorf("@every duration must be positive, got %s", d)
	}

	if d%time.Hour == 0 {
		hours := int(d / time.Hour)
		if hours == 1 {
			return "0 * * * *", nil
		}
		if 24%hours == 0 {
			return fmt.Sprintf("0 */%d * * *", hours), nil
		}
	}
	if d%time.Minute == 0 {
		minutes := int(d / time.Minute)
		if minutes >= 1 && minutes < 60 && 60%minutes == 0 {
			return fmt.Sprintf("*/%d * * * *", minutes), nil
		}
	}
	return "", fmt.Errorf("@every %s has no exact 5-field cron equivalent (minutes must divide 60, or hours must divide 24)", durStr)
}
