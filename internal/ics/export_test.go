package ics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
)

func TestWriteRoundTrip(t *testing.T) {
	start := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	events := []calendar.Event{
		{ID: "e1", Kind: calendar.KindMeeting, Title: "Site visit", Location: "Stockholm", StartTime: start, EndTime: &end, Assignee: calendar.UserAssignee("u1"), Version: 3, LeadID: "lead-9"},
		{ID: "e2", Kind: calendar.KindReminder, StartTime: start.Add(24 * time.Hour)},
	}

	var buf bytes.Buffer
	stamp := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	if err := Write(&buf, events, WithName("Field team"), WithClock(func() time.Time { return stamp })); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"X-WR-CALNAME:Field team", "X-CRMCAL-ASSIGNEE:user:u1", "X-CRMCAL-LEAD:lead-9", "SEQUENCE:2", "CATEGORIES:MEETING"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in\n%s", want, out)
		}
	}

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := cal.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if uid := got[0].GetProperty(ical.ComponentPropertyUniqueId); uid == nil || uid.Value != "e1@crmcal" {
		t.Fatalf("unexpected uid: %+v", uid)
	}
	if s := got[0].GetProperty(ical.ComponentPropertySummary); s == nil || s.Value != "Site visit" {
		t.Fatalf("unexpected summary: %+v", s)
	}
	gotStart, err := got[0].GetStartAt()
	if err != nil || !gotStart.Equal(start) {
		t.Fatalf("start = %v, %v", gotStart, err)
	}
	gotEnd, err := got[0].GetEndAt()
	if err != nil || !gotEnd.Equal(end) {
		t.Fatalf("end = %v, %v", gotEnd, err)
	}
}

func TestPointEventHasNoEnd(t *testing.T) {
	ev := calendar.Event{ID: "p1", Kind: calendar.KindTask, StartTime: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	cal := Build([]calendar.Event{ev})
	got := cal.Events()
	if len(got) != 1 {
		t.Fatalf("expected 1 event")
	}
	if got[0].GetProperty(ical.ComponentPropertyDtEnd) != nil {
		t.Fatalf("point events must not carry DTEND")
	}
	if s := got[0].GetProperty(ical.ComponentPropertySummary); s == nil || s.Value != "task" {
		t.Fatalf("expected kind as fallback summary, got %+v", s)
	}
}
