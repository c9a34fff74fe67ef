package poller

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Trigger decides when the next poll tick fires.
type Trigger interface {
	Next(now time.Time) time.Time
	String() string
}

type intervalTrigger struct {
	every time.Duration
}

// IntervalTrigger fires every d. Non-positive durations fall back to one second.
func IntervalTrigger(d time.Duration) Trigger {
	if d <= 0 {
		d = time.Second
	}
	return intervalTrigger{every: d}
}

func (t intervalTrigger) Next(now time.Time) time.Time { return now.Add(t.every) }

func (t intervalTrigger) String() string { return "every " + t.every.String() }

type cronTrigger struct {
	expr     string
	schedule cron.Schedule
}

// CronTrigger fires on a standard five-field cron expression or a descriptor
// such as "@every 30s".
func CronTrigger(expr string) (Trigger, error) {
	expr = strings.TrimSpace(expr)
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("poller: parse cron %q: %w", expr, err)
	}
	return cronTrigger{expr: expr, schedule: schedule}, nil
}

func (t cronTrigger) Next(now time.Time) time.Time { return t.schedule.Next(now) }

func (t cronTrigger) String() string { return "cron " + t.expr }
