// Package directory resolves users and teams: their role, city tags and
// team memberships. Scheduling and audience resolution read it; nothing in
// the core writes it.
package directory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/auth"
)

var ErrNotFound = errors.New("directory: not found")

// Kind distinguishes users from teams.
type Kind string

const (
	KindUser Kind = "user"
	KindTeam Kind = "team"
)

// Subject is a user or a team. Role is set for users only. TeamIDs lists the
// teams a user belongs to.
type Subject struct {
	ID             string    `json:"id" yaml:"id"`
	OrganizationID string    `json:"organization_id" yaml:"organization_id"`
	Kind           Kind      `json:"kind" yaml:"kind"`
	Name           string    `json:"name,omitempty" yaml:"name"`
	Role           auth.Role `json:"role,omitempty" yaml:"role"`
	Cities         []string  `json:"cities,omitempty" yaml:"cities"`
	TeamIDs        []string  `json:"team_ids,omitempty" yaml:"team_ids"`
}

// City returns the primary city tag, or "".
func (s Subject) City() string {
	if len(s.Cities) == 0 {
		return ""
	}
	return s.Cities[0]
}

func (s Subject) clone() Subject {
	s.Cities = append([]string(nil), s.Cities...)
	s.TeamIDs = append([]string(nil), s.TeamIDs...)
	return s
}

// Lookup is the read side of the directory.
type Lookup interface {
	Subject(ctx context.Context, id string) (Subject, error)
	TeamMembers(ctx context.Context, teamID string) ([]string, error)
}

// Lister can enumerate the whole directory.
type Lister interface {
	All(ctx context.Context) ([]Subject, error)
}

// RosterFor resolves the roles of userIDs into a roster snapshot. Unknown
// users are left out.
func RosterFor(ctx context.Context, l Lookup, userIDs []string) (auth.RosterMap, error) {
	roster := make(auth.RosterMap, len(userIDs))
	for _, id := range userIDs {
		if _, done := roster[id]; done || id == "" {
			continue
		}
		s, err := l.Subject(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if s.Kind == KindUser && s.Role.Valid() {
			roster[id] = s.Role
		}
	}
	return roster, nil
}

// Static is an in-memory directory.
type Static struct {
	mu       sync.RWMutex
	subjects map[string]Subject
	members  map[string][]string
}

// NewStatic builds a directory from subjects. Team membership is derived
// from each user's TeamIDs.
func NewStatic(subjects ...Subject) *Static {
	s := &Static{}
	s.Replace(subjects)
	return s
}

// Replace swaps the whole directory content atomically.
func (s *Static) Replace(subjects []Subject) {
	byID := make(map[string]Subject, len(subjects))
	members := make(map[string][]string)
	for _, sub := range subjects {
		sub.ID = strings.TrimSpace(sub.ID)
		if sub.ID == "" {
			continue
		}
		byID[sub.ID] = sub.clone()
		if sub.Kind == KindUser {
			for _, team := range sub.TeamIDs {
				members[team] = append(members[team], sub.ID)
			}
		}
	}
	for team := range members {
		sort.Strings(members[team])
	}
	s.mu.Lock()
	s.subjects = byID
	s.members = members
	s.mu.Unlock()
}

func (s *Static) Subject(_ context.Context, id string) (Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subjects[id]
	if !ok {
		return Subject{}, ErrNotFound
	}
	return sub.clone(), nil
}

func (s *Static) TeamMembers(_ context.Context, teamID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sub, ok := s.subjects[teamID]; !ok || sub.Kind != KindTeam {
		return nil, ErrNotFound
	}
	return append([]string(nil), s.members[teamID]...), nil
}

func (s *Static) All(context.Context) ([]Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Subject, 0, len(s.subjects))
	for _, sub := range s.subjects {
		out = append(out, sub.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
