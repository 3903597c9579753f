package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
)

var testRoster = RosterMap{
	"admin-1":  RoleAdmin,
	"sales-1":  RoleSales,
	"sales-2":  RoleSales,
	"worker-1": RoleWorker,
	"worker-2": RoleWorker,
}

func event(id string, a calendar.Assignee) calendar.Event {
	return calendar.Event{
		ID:             id,
		OrganizationID: "org-1",
		Kind:           calendar.KindMeeting,
		StartTime:      time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Assignee:       a,
	}
}

func testPool() []calendar.Event {
	return []calendar.Event{
		event("self", calendar.UserAssignee("worker-1")),
		event("own-team", calendar.TeamAssignee("team-t")),
		event("other-team", calendar.TeamAssignee("team-u")),
		event("peer-worker", calendar.UserAssignee("worker-2")),
		event("sales", calendar.UserAssignee("sales-2")),
		event("admin", calendar.UserAssignee("admin-1")),
		event("unassigned", calendar.NoAssignee()),
		event("unknown-user", calendar.UserAssignee("ghost")),
	}
}

func mustPolicy(t *testing.T, role Role) VisibilityPolicy {
	t.Helper()
	p, err := PolicyFor(role, testRoster)
	if err != nil {
		t.Fatalf("PolicyFor(%s): %v", role, err)
	}
	return p
}

func ids(evs []calendar.Event) map[string]bool {
	out := make(map[string]bool, len(evs))
	for _, ev := range evs {
		out[ev.ID] = true
	}
	return out
}

func TestWorkerSeesOnlySelfAndOwnTeams(t *testing.T) {
	actor := Actor{UserID: "worker-1", OrganizationID: "org-1", Role: RoleWorker, TeamIDs: []string{"team-t"}}
	pool := []calendar.Event{
		event("team-u", calendar.TeamAssignee("team-u")),
		event("self", calendar.UserAssignee("worker-1")),
	}
	got := FilterVisible(mustPolicy(t, RoleWorker), actor, pool)
	if len(got) != 1 || got[0].ID != "self" {
		t.Fatalf("expected only self-assigned event, got %+v", got)
	}
}

func TestPolicyVisibilityByRole(t *testing.T) {
	cases := []struct {
		role Role
		want []string
	}{
		{RoleWorker, []string{"self", "own-team"}},
		{RoleSales, []string{"self", "own-team", "sales", "admin"}},
		{RoleAdmin, []string{"self", "own-team", "other-team", "peer-worker", "sales", "admin", "unassigned", "unknown-user"}},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			actor := Actor{UserID: "worker-1", OrganizationID: "org-1", Role: tc.role, TeamIDs: []string{"team-t"}}
			got := ids(FilterVisible(mustPolicy(t, tc.role), actor, testPool()))
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for _, id := range tc.want {
				if !got[id] {
					t.Fatalf("expected %s visible, got %v", id, got)
				}
			}
		})
	}
}

func TestPolicyIsMonotonicInRank(t *testing.T) {
	pool := testPool()
	users := []struct {
		id    string
		teams []string
	}{
		{"worker-1", []string{"team-t"}},
		{"sales-1", nil},
		{"admin-1", []string{"team-u"}},
		{"ghost", []string{"team-t", "team-u"}},
	}
	targets := []calendar.Assignee{
		calendar.NoAssignee(),
		calendar.UserAssignee("worker-1"),
		calendar.UserAssignee("worker-2"),
		calendar.UserAssignee("sales-2"),
		calendar.UserAssignee("admin-1"),
		calendar.TeamAssignee("team-t"),
		calendar.TeamAssignee("team-u"),
	}
	for _, u := range users {
		var prevView map[string]bool
		var prevAssign []bool
		for _, role := range Roles {
			actor := Actor{UserID: u.id, OrganizationID: "org-1", Role: role, TeamIDs: u.teams}
			p := mustPolicy(t, role)
			view := ids(FilterVisible(p, actor, pool))
			assign := make([]bool, len(targets))
			for i, target := range targets {
				assign[i] = p.CanAssignTo(actor, target)
			}
			for id := range prevView {
				if !view[id] {
					t.Fatalf("%s as %s lost visibility of %s", u.id, role, id)
				}
			}
			for i := range prevAssign {
				if prevAssign[i] && !assign[i] {
					t.Fatalf("%s as %s lost assignability of %s", u.id, role, targets[i])
				}
			}
			prevView, prevAssign = view, assign
		}
	}
}

func TestPolicyAssignRules(t *testing.T) {
	worker := Actor{UserID: "worker-1", OrganizationID: "org-1", Role: RoleWorker, TeamIDs: []string{"team-t"}}
	sales := Actor{UserID: "sales-1", OrganizationID: "org-1", Role: RoleSales}
	wp, sp := mustPolicy(t, RoleWorker), mustPolicy(t, RoleSales)

	if !wp.CanAssignTo(worker, calendar.NoAssignee()) || !sp.CanAssignTo(sales, calendar.NoAssignee()) {
		t.Fatalf("every role may leave work unassigned")
	}
	if wp.CanAssignTo(worker, calendar.UserAssignee("worker-2")) {
		t.Fatalf("worker must not assign to another worker")
	}
	if !wp.CanAssignTo(worker, calendar.TeamAssignee("team-t")) {
		t.Fatalf("worker may assign to own team")
	}
	if sp.CanAssignTo(sales, calendar.UserAssignee("worker-2")) {
		t.Fatalf("sales must not assign outside its roster")
	}
	if !sp.CanAssignTo(sales, calendar.UserAssignee("admin-1")) {
		t.Fatalf("sales may assign to admins")
	}

	err := RequireAssign(wp, worker, calendar.UserAssignee("worker-2"))
	var authErr *AuthorizationError
	if !errors.As(err, &authErr) || !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
	if authErr.Actor.UserID != "worker-1" || authErr.Action != "assign to" {
		t.Fatalf("unexpected error detail: %+v", authErr)
	}
}

func TestPolicyNeverCrossesOrganisations(t *testing.T) {
	foreign := event("foreign", calendar.UserAssignee("admin-1"))
	foreign.OrganizationID = "org-2"
	for _, role := range Roles {
		actor := Actor{UserID: "admin-1", OrganizationID: "org-1", Role: role}
		if mustPolicy(t, role).CanView(actor, foreign) {
			t.Fatalf("%s saw an event of another organisation", role)
		}
	}
}

func TestPolicyForUnknownRole(t *testing.T) {
	if _, err := PolicyFor("owner", nil); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	p, err := PolicyFor(RoleSales, nil)
	if err != nil {
		t.Fatalf("PolicyFor: %v", err)
	}
	actor := Actor{UserID: "sales-1", OrganizationID: "org-1", Role: RoleSales}
	if p.CanView(actor, event("admin", calendar.UserAssignee("admin-1"))) {
		t.Fatalf("without a roster no other user is known")
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("  Sales ")
	if err != nil || r != RoleSales {
		t.Fatalf("ParseRole: %v %v", r, err)
	}
	if !RoleAdmin.AtLeast(RoleSales) || RoleWorker.AtLeast(RoleSales) {
		t.Fatalf("unexpected rank ordering")
	}
	if _, err := ParseRole(""); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected error for empty role")
	}
}
