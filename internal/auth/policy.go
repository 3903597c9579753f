package auth

import (
	"fmt"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
)

// VisibilityPolicy decides what an actor may see and whom it may assign work to.
// Each role has exactly one implementation.
type VisibilityPolicy interface {
	Role() Role
	CanView(actor Actor, ev calendar.Event) bool
	CanAssignTo(actor Actor, target calendar.Assignee) bool
}

// PolicyFor returns the policy of role. The roster resolves roles of other
// users for the sales roster; nil means no other user is known.
func PolicyFor(role Role, roster Roster) (VisibilityPolicy, error) {
	if roster == nil {
		roster = noRoster{}
	}
	switch role {
	case RoleAdmin:
		return adminPolicy{}, nil
	case RoleSales:
		return salesPolicy{roster: roster}, nil
	case RoleWorker:
		return workerPolicy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
}

type adminPolicy struct{}

func (adminPolicy) Role() Role { return RoleAdmin }

func (adminPolicy) CanView(actor Actor, ev calendar.Event) bool {
	return sameOrg(actor, ev)
}

func (adminPolicy) CanAssignTo(Actor, calendar.Assignee) bool { return true }

// workerPolicy: self and own teams.
type workerPolicy struct{}

func (workerPolicy) Role() Role { return RoleWorker }

func (workerPolicy) CanView(actor Actor, ev calendar.Event) bool {
	return sameOrg(actor, ev) && ownedBy(actor, ev.Assignee)
}

func (workerPolicy) CanAssignTo(actor Actor, target calendar.Assignee) bool {
	return target.IsNone() || ownedBy(actor, target)
}

// salesPolicy extends the worker roster with every admin and sales user.
type salesPolicy struct {
	roster Roster
}

func (salesPolicy) Role() Role { return RoleSales }

func (p salesPolicy) CanView(actor Actor, ev calendar.Event) bool {
	return sameOrg(actor, ev) && p.onRoster(actor, ev.Assignee)
}

func (p salesPolicy) CanAssignTo(actor Actor, target calendar.Assignee) bool {
	return target.IsNone() || p.onRoster(actor, target)
}

func (p salesPolicy) onRoster(actor Actor, a calendar.Assignee) bool {
	if ownedBy(actor, a) {
		return true
	}
	id := a.UserID()
	if id == "" {
		return false
	}
	role, ok := p.roster.RoleOf(id)
	return ok && (role == RoleAdmin || role == RoleSales)
}

func ownedBy(actor Actor, a calendar.Assignee) bool {
	switch a.Kind {
	case calendar.AssigneeUser:
		return a.ID != "" && a.ID == actor.UserID
	case calendar.AssigneeTeam:
		return actor.MemberOf(a.ID)
	default:
		return false
	}
}

func sameOrg(actor Actor, ev calendar.Event) bool {
	return actor.OrganizationID != "" && actor.OrganizationID == ev.OrganizationID
}

// FilterVisible returns the events p lets actor see, preserving order.
func FilterVisible(p VisibilityPolicy, actor Actor, events []calendar.Event) []calendar.Event {
	out := make([]calendar.Event, 0, len(events))
	for _, ev := range events {
		if p.CanView(actor, ev) {
			out = append(out, ev)
		}
	}
	return out
}

// RequireView returns an AuthorizationError unless actor may see ev.
func RequireView(p VisibilityPolicy, actor Actor, ev calendar.Event) error {
	if !p.CanView(actor, ev) {
		return forbidden(actor, "view", "event "+ev.ID)
	}
	return nil
}

// RequireAssign returns an AuthorizationError unless actor may assign to target.
func RequireAssign(p VisibilityPolicy, actor Actor, target calendar.Assignee) error {
	if !p.CanAssignTo(actor, target) {
		return forbidden(actor, "assign to", target.String())
	}
	return nil
}
