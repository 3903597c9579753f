package calendar

import (
	"strings"
	"time"
)

// Validate checks the event invariants: a start time, end not before start,
// a known kind and a well-formed assignee.
func (e Event) Validate() error {
	if e.StartTime.IsZero() {
		return invalid("start_time", "is required")
	}
	if e.EndTime != nil && e.EndTime.Before(e.StartTime) {
		return invalid("end_time", "must not be before start_time")
	}
	if !e.Kind.Valid() {
		return invalid("kind", "must be one of meeting, task, reminder")
	}
	return e.Assignee.Validate()
}

// Validate checks that the union tag and id agree.
func (a Assignee) Validate() error {
	switch a.Kind {
	case AssigneeNone:
		if a.ID != "" {
			return invalid("assignee", "id given without kind")
		}
	case AssigneeUser, AssigneeTeam:
		if strings.TrimSpace(a.ID) == "" {
			return invalid("assignee", "id is required for "+string(a.Kind))
		}
	default:
		return invalid("assignee", "unknown kind "+string(a.Kind))
	}
	return nil
}

// Frequency is the step unit of a recurrence.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly:
		return true
	}
	return false
}

// RecurrenceRequest is a transient instruction to materialise a series of
// independent events. EndDate is compared by calendar date in the base
// event's offset and is inclusive.
type RecurrenceRequest struct {
	Base      Event     `json:"base"`
	Frequency Frequency `json:"frequency"`
	Interval  int       `json:"interval"`
	EndDate   time.Time `json:"end_date"`
}

func (r RecurrenceRequest) Validate() error {
	if err := r.Base.Validate(); err != nil {
		return err
	}
	if !r.Frequency.Valid() {
		return invalid("frequency", "must be one of daily, weekly, monthly")
	}
	if r.Interval <= 0 {
		return invalid("interval", "must be a positive integer")
	}
	if r.EndDate.IsZero() {
		return invalid("end_date", "is required")
	}
	loc := r.Base.StartTime.Location()
	if r.lastDate(loc).Before(dateOf(r.Base.StartTime, loc)) {
		return invalid("end_date", "must not be before the start date")
	}
	return nil
}

// lastDate is EndDate's own calendar date placed in loc. The wall date the
// caller wrote is kept even when EndDate carries a different offset.
func (r RecurrenceRequest) lastDate(loc *time.Location) time.Time {
	return time.Date(r.EndDate.Year(), r.EndDate.Month(), r.EndDate.Day(), 0, 0, 0, 0, loc)
}

// dateOf truncates t to midnight of its calendar date as seen in loc.
func dateOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
