package calendar

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// DefaultMaxInstances bounds a single expansion.
const DefaultMaxInstances = 1000

// ExpandOption tunes Expand.
type ExpandOption func(*expandConfig)

type expandConfig struct {
	maxInstances int
}

// WithMaxInstances overrides the per-request instance cap. Values <= 0 keep the default.
func WithMaxInstances(n int) ExpandOption {
	return func(c *expandConfig) {
		if n > 0 {
			c.maxInstances = n
		}
	}
}

// Expand materialises a recurrence request into independent events, ordered
// by start. Every instance keeps the base clock time and duration, evaluated
// in the fixed offset the base start carries, so daylight-saving transitions
// never shift an instance. Monthly steps landing on a day the month does not
// have are clamped to the month's last day. Zero instances is not an error.
//
// Returned events have no ID and no link back to the request.
func Expand(req RecurrenceRequest, opts ...ExpandOption) ([]Event, error) {
	cfg := expandConfig{maxInstances: DefaultMaxInstances}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	name, offset := req.Base.StartTime.Zone()
	fixed := time.FixedZone(name, offset)
	start := req.Base.StartTime.In(fixed)
	until := req.lastDate(fixed).AddDate(0, 0, 1).Add(-time.Nanosecond)

	rule, err := rrule.NewRRule(ruleOptions(req, start, until))
	if err != nil {
		return nil, fmt.Errorf("build recurrence rule: %w", err)
	}
	dates := rule.All()
	if len(dates) > cfg.maxInstances {
		return nil, invalid("end_date", fmt.Sprintf("expands to %d instances, limit is %d", len(dates), cfg.maxInstances))
	}

	hour, min, sec := start.Clock()
	out := make([]Event, 0, len(dates))
	for _, d := range dates {
		d = d.In(fixed)
		instStart := time.Date(d.Year(), d.Month(), d.Day(), hour, min, sec, start.Nanosecond(), fixed)
		if instStart.After(until) {
			break
		}
		out = append(out, instance(req.Base, instStart))
	}
	return out, nil
}

func ruleOptions(req RecurrenceRequest, start, until time.Time) rrule.ROption {
	opt := rrule.ROption{
		Dtstart:  start,
		Interval: req.Interval,
		Until:    until,
	}
	switch req.Frequency {
	case Daily:
		opt.Freq = rrule.DAILY
	case Weekly:
		opt.Freq = rrule.WEEKLY
	case Monthly:
		opt.Freq = rrule.MONTHLY
		day := start.Day()
		if day <= 28 {
			opt.Bymonthday = []int{day}
			break
		}
		// Days 29-31: pick the last existing day among 28..day.
		for d := 28; d <= day; d++ {
			opt.Bymonthday = append(opt.Bymonthday, d)
		}
		opt.Bysetpos = []int{-1}
	}
	return opt
}

func instance(base Event, start time.Time) Event {
	ev := base.Clone()
	ev.ID = ""
	ev.Version = 0
	ev.CreatedAt = time.Time{}
	ev.UpdatedAt = time.Time{}
	dur := base.Duration()
	ev.StartTime = start
	if base.EndTime != nil {
		end := start.Add(dur)
		ev.EndTime = &end
	}
	return ev
}
