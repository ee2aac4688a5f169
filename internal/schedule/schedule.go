// Package schedule computes daily fire times and runs a job on them.
package schedule

import (
	"fmt"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Daily fires once per calendar day at a wall-clock time in Location.
// It satisfies cronlib.Schedule.
type Daily struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// Next returns today's target if it is still ahead of now, otherwise the
// same wall-clock time tomorrow. The result is always strictly after now.
// The offset is resolved here, once; a DST change before the fire is not
// re-evaluated by the caller's wait.
func (d Daily) Next(now time.Time) time.Time {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	target := time.Date(local.Year(), local.Month(), local.Day(), d.Hour, d.Minute, 0, 0, loc)
	if !target.After(now) {
		target = time.Date(local.Year(), local.Month(), local.Day()+1, d.Hour, d.Minute, 0, 0, loc)
	}
	return target
}

func (d Daily) String() string {
	return fmt.Sprintf("daily at %02d:%02d %s", d.Hour, d.Minute, d.Location)
}

// inLocation evaluates a cron expression in a fixed timezone.
type inLocation struct {
	sched cronlib.Schedule
	loc   *time.Location
	expr  string
}

func (s inLocation) Next(now time.Time) time.Time {
	return s.sched.Next(now.In(s.loc))
}

func (s inLocation) String() string {
	return fmt.Sprintf("cron %q %s", s.expr, s.loc)
}

// LoadLocation resolves a timezone name; empty means the process local zone.
func LoadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Parse builds the schedule for the daily check-in. A non-empty cron
// expression takes precedence over hour and minute.
func Parse(hour, minute int, tz, cronExpr string) (cronlib.Schedule, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	if expr := strings.TrimSpace(cronExpr); expr != "" {
		sched, err := cronlib.ParseStandard(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
		return inLocation{sched: sched, loc: loc, expr: expr}, nil
	}
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("hour must be between 0 and 23, got %d", hour)
	}
	if minute < 0 || minute > 59 {
		return nil, fmt.Errorf("minute must be between 0 and 59, got %d", minute)
	}
	return Daily{Hour: hour, Minute: minute, Location: loc}, nil
}
