package calendar

import (
	"sort"
	"time"
)

// Candidate is a time range proposed for an assignee. ExcludeID names the
// event being edited so it never collides with its own previous state.
type Candidate struct {
	StartTime time.Time
	EndTime   *time.Time
	Assignee  Assignee
	ExcludeID string
}

// CandidateFor builds the candidate describing ev itself.
func CandidateFor(ev Event) Candidate {
	return Candidate{StartTime: ev.StartTime, EndTime: ev.EndTime, Assignee: ev.Assignee, ExcludeID: ev.ID}
}

func (c Candidate) end() time.Time {
	if c.EndTime == nil {
		return c.StartTime
	}
	return *c.EndTime
}

// ConflictResult reports whether the candidate collides and with what.
type ConflictResult struct {
	Conflict  bool
	Colliding []Event
}

// Overlaps applies the half-open rule: each range starts strictly before the
// other ends. Touching ranges do not overlap; a point (start == end) only
// overlaps a range that strictly contains it.
func Overlaps(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && start2.Before(end1)
}

// DetectConflicts checks the candidate against pool. Only events bound to the
// very same user or team are considered; unassigned candidates never conflict.
// Colliding events are returned ordered by start time.
func DetectConflicts(c Candidate, pool []Event) ConflictResult {
	var res ConflictResult
	if c.Assignee.IsNone() {
		return res
	}
	cEnd := c.end()
	for _, ev := range pool {
		if c.ExcludeID != "" && ev.ID == c.ExcludeID {
			continue
		}
		if !c.Assignee.Same(ev.Assignee) {
			continue
		}
		if Overlaps(c.StartTime, cEnd, ev.StartTime, ev.End()) {
			res.Colliding = append(res.Colliding, ev.Clone())
		}
	}
	res.Conflict = len(res.Colliding) > 0
	sortByStart(res.Colliding)
	return res
}

// CheckUserAndTeam runs the user pass for c and a second, independent pass
// for teamID over the same window, merging both colliding sets. It is used
// when both an individual and their team must be free.
func CheckUserAndTeam(c Candidate, teamID string, pool []Event) ConflictResult {
	res := DetectConflicts(c, pool)
	if teamID == "" {
		return res
	}
	teamCandidate := c
	teamCandidate.Assignee = TeamAssignee(teamID)
	team := DetectConflicts(teamCandidate, pool)
	return mergeResults(res, team)
}

func mergeResults(a, b ConflictResult) ConflictResult {
	seen := make(map[string]struct{}, len(a.Colliding))
	out := ConflictResult{}
	for _, set := range [][]Event{a.Colliding, b.Colliding} {
		for _, ev := range set {
			if ev.ID != "" {
				if _, ok := seen[ev.ID]; ok {
					continue
				}
				seen[ev.ID] = struct{}{}
			}
			out.Colliding = append(out.Colliding, ev)
		}
	}
	out.Conflict = len(out.Colliding) > 0
	sortByStart(out.Colliding)
	return out
}

// SortByStart orders events by start time, then id.
func SortByStart(evs []Event) { sortByStart(evs) }

func sortByStart(evs []Event) {
	sort.SliceStable(evs, func(i, j int) bool {
		if !evs[i].StartTime.Equal(evs[j].StartTime) {
			return evs[i].StartTime.Before(evs[j].StartTime)
		}
		return evs[i].ID < evs[j].ID
	})
}
