// Package audience turns a city / user / team filter selection into the set
// of cities whose work is relevant. It narrows what a visibility policy
// already allows and never widens it.
package audience

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/directory"
)

// FilterState is one query's filter selection.
type FilterState struct {
	City    string   `json:"city,omitempty"`
	UserIDs []string `json:"user_ids,omitempty"`
	TeamIDs []string `json:"team_ids,omitempty"`
}

// IsEmpty reports whether nothing is selected.
func (fs FilterState) IsEmpty() bool {
	return strings.TrimSpace(fs.City) == "" && len(fs.UserIDs) == 0 && len(fs.TeamIDs) == 0
}

// Relevance is the outcome of Resolve. All means no narrowing; otherwise only
// items tagged with one of Cities are relevant, and an empty Cities set means
// nothing is.
type Relevance struct {
	All    bool     `json:"all"`
	Cities []string `json:"cities,omitempty"`
}

// Matches reports whether an item tagged with city is relevant.
func (r Relevance) Matches(city string) bool {
	if r.All {
		return true
	}
	city = strings.TrimSpace(city)
	if city == "" {
		return false
	}
	for _, c := range r.Cities {
		if strings.EqualFold(c, city) {
			return true
		}
	}
	return false
}

// Resolve computes the relevant cities. An explicit city overrides whatever
// the selected users and teams would contribute. Subjects missing from the
// directory contribute nothing.
func Resolve(ctx context.Context, dir directory.Lookup, fs FilterState) (Relevance, error) {
	if city := strings.TrimSpace(fs.City); city != "" {
		return Relevance{Cities: []string{city}}, nil
	}
	if len(fs.UserIDs) == 0 && len(fs.TeamIDs) == 0 {
		return Relevance{All: true}, nil
	}

	set := newCitySet()
	for _, ids := range [][]string{fs.UserIDs, fs.TeamIDs} {
		for _, id := range ids {
			sub, err := dir.Subject(ctx, id)
			if errors.Is(err, directory.ErrNotFound) {
				continue
			}
			if err != nil {
				return Relevance{}, err
			}
			set.add(sub.Cities...)
		}
	}
	return Relevance{Cities: set.sorted()}, nil
}

// MatchesAny reports whether an item tagged with any of cities is relevant.
func (r Relevance) MatchesAny(cities []string) bool {
	if r.All {
		return true
	}
	for _, city := range cities {
		if r.Matches(city) {
			return true
		}
	}
	return false
}

// Narrow keeps the events with at least one relevant city among those
// reported by citiesOf.
func Narrow(rel Relevance, events []calendar.Event, citiesOf func(calendar.Event) []string) []calendar.Event {
	if rel.All {
		return events
	}
	out := make([]calendar.Event, 0, len(events))
	for _, ev := range events {
		if rel.MatchesAny(citiesOf(ev)) {
			out = append(out, ev)
		}
	}
	return out
}

// CityResolver maps an event to the city tags of its assignee, caching
// directory lookups for the lifetime of one query.
type CityResolver struct {
	dir   directory.Lookup
	cache map[string][]string
	err   error
}

func NewCityResolver(dir directory.Lookup) *CityResolver {
	return &CityResolver{dir: dir, cache: make(map[string][]string)}
}

// CitiesOf returns nil for unassigned events and unknown assignees. The
// first directory failure is kept in Err.
func (r *CityResolver) CitiesOf(ctx context.Context, ev calendar.Event) []string {
	if ev.Assignee.IsNone() {
		return nil
	}
	id := ev.Assignee.ID
	if cities, ok := r.cache[id]; ok {
		return cities
	}
	sub, err := r.dir.Subject(ctx, id)
	if err != nil && !errors.Is(err, directory.ErrNotFound) && r.err == nil {
		r.err = err
	}
	var cities []string
	if err == nil {
		cities = sub.Cities
	}
	r.cache[id] = cities
	return cities
}

func (r *CityResolver) Err() error { return r.err }

type citySet struct {
	seen  map[string]struct{}
	order []string
}

func newCitySet() *citySet { return &citySet{seen: make(map[string]struct{})} }

// add keeps the spelling of the first occurrence of each city.
func (s *citySet) add(cities ...string) {
	for _, c := range cities {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		key := strings.ToLower(c)
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		s.order = append(s.order, c)
	}
}

func (s *citySet) sorted() []string {
	if len(s.order) == 0 {
		return nil
	}
	out := append([]string(nil), s.order...)
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}
