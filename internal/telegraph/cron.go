package telegraph

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidCron reports whether expr is a valid 5-field cron expression.
func ValidCron(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("telegraph: cron %q: %w", expr, err)
	}
	return nil
}

// newScheduler returns a stopped cron runner that calls job on expr.
func newScheduler(expr string, job func()) (*cron.Cron, error) {
	c := cron.New(cron.WithParser(cronParser))
	if _, err := c.AddFunc(expr, job); err != nil {
		return nil, fmt.Errorf("telegraph: schedule %q: %w", expr, err)
	}
	return c, nil
}
