// Package ics renders calendar events as an iCalendar feed.
package ics

import (
	"io"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
)

const (
	DefaultProductID = "-//crmcal//calendar export//EN"
	uidDomain        = "crmcal"

	propertyAssignee ical.ComponentProperty = "X-CRMCAL-ASSIGNEE"
	propertyLead     ical.ComponentProperty = "X-CRMCAL-LEAD"
	propertyOrder    ical.ComponentProperty = "X-CRMCAL-ORDER"
)

// Option configures an export.
type Option func(*exporter)

type exporter struct {
	productID string
	name      string
	now       func() time.Time
}

// WithName sets the calendar display name (X-WR-CALNAME).
func WithName(name string) Option {
	return func(e *exporter) { e.name = strings.TrimSpace(name) }
}

func WithProductID(id string) Option {
	return func(e *exporter) {
		if id = strings.TrimSpace(id); id != "" {
			e.productID = id
		}
	}
}

// WithClock overrides the DTSTAMP source.
func WithClock(now func() time.Time) Option {
	return func(e *exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// Build converts events into a VCALENDAR. Events without an end time are
// written with DTSTART only.
func Build(events []calendar.Event, opts ...Option) *ical.Calendar {
	e := exporter{productID: DefaultProductID, now: time.Now}
	for _, opt := range opts {
		opt(&e)
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(e.productID)
	if e.name != "" {
		cal.SetName(e.name)
	}
	stamp := e.now().UTC()
	for _, ev := range events {
		addEvent(cal, ev, stamp)
	}
	return cal
}

// Write serialises events to w.
func Write(w io.Writer, events []calendar.Event, opts ...Option) error {
	_, err := io.WriteString(w, Build(events, opts...).Serialize())
	return err
}

// UID is the stable iCalendar identifier of an event.
func UID(ev calendar.Event) string {
	return ev.ID + "@" + uidDomain
}

func addEvent(cal *ical.Calendar, ev calendar.Event, stamp time.Time) {
	ve := cal.AddEvent(UID(ev))
	ve.SetDtStampTime(stamp)
	if !ev.CreatedAt.IsZero() {
		ve.SetCreatedTime(ev.CreatedAt.UTC())
	}
	if !ev.UpdatedAt.IsZero() {
		ve.SetModifiedAt(ev.UpdatedAt.UTC())
	}
	ve.SetStartAt(ev.StartTime.UTC())
	if ev.EndTime != nil {
		ve.SetEndAt(ev.EndTime.UTC())
	}
	ve.SetSummary(summary(ev))
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}
	if ev.Location != "" {
		ve.SetLocation(ev.Location)
	}
	if ev.MeetingLink != "" {
		ve.SetURL(ev.MeetingLink)
	}
	ve.SetProperty(ical.ComponentPropertyCategories, strings.ToUpper(string(ev.Kind)))
	if ev.Version > 0 {
		ve.SetProperty(ical.ComponentPropertySequence, strconv.FormatInt(ev.Version-1, 10))
	}
	if !ev.Assignee.IsNone() {
		ve.SetProperty(propertyAssignee, ev.Assignee.String())
	}
	if ev.LeadID != "" {
		ve.SetProperty(propertyLead, ev.LeadID)
	}
	if ev.OrderID != "" {
		ve.SetProperty(propertyOrder, ev.OrderID)
	}
}

func summary(ev calendar.Event) string {
	if t := strings.TrimSpace(ev.Title); t != "" {
		return t
	}
	if ev.Kind == "" {
		return "event"
	}
	return string(ev.Kind)
}
