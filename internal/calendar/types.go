package calendar

import (
	"context"
	"time"
)

// Kind classifies a commitment.
type Kind string

const (
	KindMeeting  Kind = "meeting"
	KindTask     Kind = "task"
	KindReminder Kind = "reminder"
)

func (k Kind) Valid() bool {
	switch k {
	case KindMeeting, KindTask, KindReminder:
		return true
	}
	return false
}

// AssigneeKind tags the Assignee union.
type AssigneeKind string

const (
	AssigneeNone AssigneeKind = ""
	AssigneeUser AssigneeKind = "user"
	AssigneeTeam AssigneeKind = "team"
)

// Assignee is the single user or team a commitment is bound to. The zero
// value is "unassigned".
type Assignee struct {
	Kind AssigneeKind `json:"kind,omitempty"`
	ID   string       `json:"id,omitempty"`
}

func UserAssignee(id string) Assignee { return Assignee{Kind: AssigneeUser, ID: id} }
func TeamAssignee(id string) Assignee { return Assignee{Kind: AssigneeTeam, ID: id} }
func NoAssignee() Assignee            { return Assignee{} }

func (a Assignee) IsNone() bool { return a.Kind == AssigneeNone }

// UserID returns the assigned user id, or "" when the event is not bound to a user.
func (a Assignee) UserID() string {
	if a.Kind == AssigneeUser {
		return a.ID
	}
	return ""
}

// TeamID returns the assigned team id, or "" when the event is not bound to a team.
func (a Assignee) TeamID() string {
	if a.Kind == AssigneeTeam {
		return a.ID
	}
	return ""
}

// Same reports whether both sides name the same non-absent assignee.
func (a Assignee) Same(b Assignee) bool {
	if a.IsNone() || b.IsNone() {
		return false
	}
	return a.Kind == b.Kind && a.ID == b.ID
}

func (a Assignee) String() string {
	if a.IsNone() {
		return "none"
	}
	return string(a.Kind) + ":" + a.ID
}

// AssigneeFromColumns builds the union from the two nullable foreign keys used
// by row-oriented storage. Both set is rejected.
func AssigneeFromColumns(userID, teamID string) (Assignee, error) {
	switch {
	case userID != "" && teamID != "":
		return Assignee{}, &ValidationError{Field: "assignee", Reason: "user and team are mutually exclusive"}
	case userID != "":
		return UserAssignee(userID), nil
	case teamID != "":
		return TeamAssignee(teamID), nil
	}
	return NoAssignee(), nil
}

// Event is a scheduled commitment.
type Event struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Kind           Kind       `json:"kind"`
	Title          string     `json:"title,omitempty"`
	Description    string     `json:"description,omitempty"`
	Location       string     `json:"location,omitempty"`
	MeetingLink    string     `json:"meeting_link,omitempty"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Assignee       Assignee   `json:"assignee"`
	LeadID         string     `json:"lead_id,omitempty"`
	OrderID        string     `json:"order_id,omitempty"`
	Version        int64      `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// End returns the effective end instant. An event without an end time is a
// zero-length point at its start.
func (e Event) End() time.Time {
	if e.EndTime == nil {
		return e.StartTime
	}
	return *e.EndTime
}

// Duration is end minus start, zero for point events.
func (e Event) Duration() time.Duration {
	return e.End().Sub(e.StartTime)
}

// Clone returns a deep copy; the EndTime pointer is not shared.
func (e Event) Clone() Event {
	out := e
	if e.EndTime != nil {
		end := *e.EndTime
		out.EndTime = &end
	}
	return out
}

// Patch carries optional field updates. Nil fields are left untouched.
type Patch struct {
	Kind         *Kind      `json:"kind,omitempty"`
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Location     *string    `json:"location,omitempty"`
	MeetingLink  *string    `json:"meeting_link,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	ClearEndTime bool       `json:"clear_end_time,omitempty"`
	Assignee     *Assignee  `json:"assignee,omitempty"`
	LeadID       *string    `json:"lead_id,omitempty"`
	OrderID      *string    `json:"order_id,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Kind == nil && p.Title == nil && p.Description == nil && p.Location == nil &&
		p.MeetingLink == nil && p.StartTime == nil && p.EndTime == nil && !p.ClearEndTime &&
		p.Assignee == nil && p.LeadID == nil && p.OrderID == nil
}

// Apply returns a copy of e with the patch applied. Identity, version and
// timestamps are not touched.
func (e Event) Apply(p Patch) Event {
	out := e.Clone()
	if p.Kind != nil {
		out.Kind = *p.Kind
	}
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Location != nil {
		out.Location = *p.Location
	}
	if p.MeetingLink != nil {
		out.MeetingLink = *p.MeetingLink
	}
	if p.StartTime != nil {
		out.StartTime = *p.StartTime
	}
	if p.ClearEndTime {
		out.EndTime = nil
	} else if p.EndTime != nil {
		end := *p.EndTime
		out.EndTime = &end
	}
	if p.Assignee != nil {
		out.Assignee = *p.Assignee
	}
	if p.LeadID != nil {
		out.LeadID = *p.LeadID
	}
	if p.OrderID != nil {
		out.OrderID = *p.OrderID
	}
	return out
}

// Reschedule builds the patch that moves an event to newStart keeping its
// duration. Point events stay points.
func Reschedule(e Event, newStart time.Time) Patch {
	p := Patch{StartTime: &newStart}
	if e.EndTime != nil {
		newEnd := newStart.Add(e.Duration())
		p.EndTime = &newEnd
	}
	return p
}

// Range is a listing window. A zero bound is open.
type Range struct {
	From time.Time
	To   time.Time
}

// Contains reports whether e intersects the window, bounds inclusive.
func (r Range) Contains(e Event) bool {
	if !r.To.IsZero() && e.StartTime.After(r.To) {
		return false
	}
	if !r.From.IsZero() && e.End().Before(r.From) {
		return false
	}
	return true
}

// AssigneeFilter narrows ListEvents. An empty filter matches every event.
type AssigneeFilter struct {
	UserIDs    []string
	TeamIDs    []string
	Unassigned bool
}

func (f AssigneeFilter) IsEmpty() bool {
	return len(f.UserIDs) == 0 && len(f.TeamIDs) == 0 && !f.Unassigned
}

// Matches reports whether a passes the filter.
func (f AssigneeFilter) Matches(a Assignee) bool {
	if f.IsEmpty() {
		return true
	}
	switch a.Kind {
	case AssigneeUser:
		return containsString(f.UserIDs, a.ID)
	case AssigneeTeam:
		return containsString(f.TeamIDs, a.ID)
	}
	return f.Unassigned
}

// FilterFor returns the filter selecting only events bound to a.
func FilterFor(a Assignee) AssigneeFilter {
	switch a.Kind {
	case AssigneeUser:
		return AssigneeFilter{UserIDs: []string{a.ID}}
	case AssigneeTeam:
		return AssigneeFilter{TeamIDs: []string{a.ID}}
	}
	return AssigneeFilter{Unassigned: true}
}

// Store is the persistence contract the scheduling core depends on. All calls
// may block on I/O.
type Store interface {
	ListEvents(ctx context.Context, orgID string, window Range, filter AssigneeFilter) ([]Event, error)
	Get(ctx context.Context, id string) (Event, error)
	Insert(ctx context.Context, ev Event) (Event, error)
	InsertMany(ctx context.Context, evs []Event) ([]Event, error)
	// Update applies the patch when the stored version equals expectedVersion
	// and returns the authoritative record with its version incremented.
	Update(ctx context.Context, id string, patch Patch, expectedVersion int64) (Event, error)
	Delete(ctx context.Context, id string) error
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
