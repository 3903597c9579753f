package calendar

import (
	"errors"
	"testing"
	"time"
)

func TestEventValidate(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	before := start.Add(-time.Minute)
	same := start

	cases := []struct {
		name  string
		ev    Event
		field string
	}{
		{"valid", Event{Kind: KindMeeting, StartTime: start, Assignee: UserAssignee("u1")}, ""},
		{"zero length is valid", Event{Kind: KindTask, StartTime: start, EndTime: &same}, ""},
		{"missing start", Event{Kind: KindMeeting}, "start_time"},
		{"end before start", Event{Kind: KindMeeting, StartTime: start, EndTime: &before}, "end_time"},
		{"unknown kind", Event{Kind: "call", StartTime: start}, "kind"},
		{"user without id", Event{Kind: KindMeeting, StartTime: start, Assignee: Assignee{Kind: AssigneeUser}}, "assignee"},
		{"id without kind", Event{Kind: KindMeeting, StartTime: start, Assignee: Assignee{ID: "x"}}, "assignee"},
		{"unknown assignee kind", Event{Kind: KindMeeting, StartTime: start, Assignee: Assignee{Kind: "group", ID: "g"}}, "assignee"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.ev.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tc.field {
				t.Fatalf("expected validation error on %s, got %v", tc.field, err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected errors.Is ErrValidation")
			}
		})
	}
}

func TestAssigneeFromColumnsRejectsBoth(t *testing.T) {
	if _, err := AssigneeFromColumns("u1", "t1"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	a, err := AssigneeFromColumns("", "t1")
	if err != nil || a != TeamAssignee("t1") {
		t.Fatalf("unexpected team assignee: %+v %v", a, err)
	}
	a, err = AssigneeFromColumns("", "")
	if err != nil || !a.IsNone() {
		t.Fatalf("expected unassigned: %+v %v", a, err)
	}
}

func TestApplyPatchDoesNotAliasEndTime(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	orig := Event{ID: "e1", Kind: KindMeeting, StartTime: start, EndTime: &end, Version: 3}

	title := "Renamed"
	out := orig.Apply(Patch{Title: &title})
	*out.EndTime = out.EndTime.Add(time.Hour)
	if !orig.EndTime.Equal(end) {
		t.Fatalf("patched copy shares end time with original")
	}
	if out.Version != 3 || out.ID != "e1" || out.Title != "Renamed" {
		t.Fatalf("unexpected patched event: %+v", out)
	}

	cleared := orig.Apply(Patch{ClearEndTime: true})
	if cleared.EndTime != nil {
		t.Fatalf("expected end time cleared")
	}
}

func TestReschedulePreservesDuration(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	orig := baseEvent(start, time.Hour)
	newStart := time.Date(2024, 1, 3, 14, 0, 0, 0, time.UTC)

	moved := orig.Apply(Reschedule(orig, newStart))
	if !moved.StartTime.Equal(newStart) || !moved.End().Equal(time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected move: %s - %s", moved.StartTime, moved.End())
	}

	reminder := Event{Kind: KindReminder, StartTime: start}
	movedPoint := reminder.Apply(Reschedule(reminder, newStart))
	if movedPoint.EndTime != nil {
		t.Fatalf("point event gained an end time")
	}
}

func TestRangeContains(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	e := baseEvent(start, time.Hour)
	cases := []struct {
		r    Range
		want bool
	}{
		{Range{}, true},
		{Range{From: start.Add(-time.Hour), To: start}, true},
		{Range{From: start.Add(time.Hour), To: start.Add(2 * time.Hour)}, true},
		{Range{From: start.Add(2 * time.Hour)}, false},
		{Range{To: start.Add(-time.Minute)}, false},
	}
	for i, tc := range cases {
		if got := tc.r.Contains(e); got != tc.want {
			t.Fatalf("case %d: Contains = %v, want %v", i, got, tc.want)
		}
	}
}
