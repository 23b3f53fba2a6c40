package schedule

import (
	"fmt"
	"time"

	"github.com/hashicorp/cronexpr"
)

// NextRunTimes returns the next n run times of cron, in UTC.
func NextRunTimes(cron string, n int) ([]time.Time, error) {
	return NextRunTimesAfter(cron, time.Now(), n)
}

// NextRunTimesAfter returns the next n run times of cron after a specific
// time, in UTC. It returns an error if the expression is invalid or n < 1.
func NextRunTimesAfter(cron string, after time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, fmt.Errorf("count must be greater than 0")
	}
	expr, err := cronexpr.Parse(cron)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	times := expr.NextN(after.UTC(), uint(n))
	if len(times) == 0 {
		return nil, fmt.Errorf("cron expression %q never runs", cron)
	}
	return times, nil
}

// ValidateCron checks that cron parses and fires at least once more.
func ValidateCron(cron string) error {
	expr, err := cronexpr.Parse(cron)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if expr.Next(time.Now()).IsZero() {
		return fmt.Errorf("cron expression %q never runs", cron)
	}
	return nil
}
