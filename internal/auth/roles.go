package auth

import (
	"fmt"
	"strings"
)

// Role is the externally attached role of an acting user.
type Role string

const (
	RoleWorker Role = "worker"
	RoleSales  Role = "sales"
	RoleAdmin  Role = "admin"
)

// Roles lists every known role from lowest to highest rank.
var Roles = []Role{RoleWorker, RoleSales, RoleAdmin}

// Rank orders roles worker < sales < admin. Unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleWorker:
		return 1
	case RoleSales:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

func (r Role) Valid() bool { return r.Rank() > 0 }

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r.Rank() >= min.Rank()
}

// ParseRole normalises s and rejects unknown roles.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// Actor is the authenticated user an operation runs on behalf of.
type Actor struct {
	UserID         string   `json:"user_id"`
	OrganizationID string   `json:"organization_id"`
	Role           Role     `json:"role"`
	TeamIDs        []string `json:"team_ids,omitempty"`
}

// MemberOf reports whether the actor belongs to teamID.
func (a Actor) MemberOf(teamID string) bool {
	if teamID == "" {
		return false
	}
	for _, id := range a.TeamIDs {
		if id == teamID {
			return true
		}
	}
	return false
}

// Roster resolves the role of other users. It backs the sales roster.
type Roster interface {
	RoleOf(userID string) (Role, bool)
}

// RosterMap is a fixed user -> role snapshot.
type RosterMap map[string]Role

func (m RosterMap) RoleOf(userID string) (Role, bool) {
	r, ok := m[userID]
	return r, ok
}

type noRoster struct{}

func (noRoster) RoleOf(string) (Role, bool) { return "", false }
