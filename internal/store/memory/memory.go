// Package memory is an in-process calendar.Store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/ids"
)

// Option configures the store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store keeps events in a map guarded by an RWMutex and hands out copies.
type Store struct {
	mu     sync.RWMutex
	events map[string]calendar.Event
	now    func() time.Time
}

var _ calendar.Store = (*Store)(nil)

func New(opts ...Option) *Store {
	s := &Store{
		events: make(map[string]calendar.Event),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ListEvents(ctx context.Context, orgID string, window calendar.Range, filter calendar.AssigneeFilter) ([]calendar.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []calendar.Event
	for _, ev := range s.events {
		if ev.OrganizationID != orgID || !window.Contains(ev) || !filter.Matches(ev.Assignee) {
			continue
		}
		out = append(out, ev.Clone())
	}
	calendar.SortByStart(out)
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (calendar.Event, error) {
	if err := ctx.Err(); err != nil {
		return calendar.Event{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return calendar.Event{}, calendar.ErrNotFound
	}
	return ev.Clone(), nil
}

func (s *Store) Insert(ctx context.Context, ev calendar.Event) (calendar.Event, error) {
	out, err := s.InsertMany(ctx, []calendar.Event{ev})
	if err != nil {
		return calendar.Event{}, err
	}
	return out[0], nil
}

// InsertMany stores all events or none.
func (s *Store) InsertMany(ctx context.Context, evs []calendar.Event) ([]calendar.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]calendar.Event, 0, len(evs))
	batch := make(map[string]struct{}, len(evs))
	for _, ev := range evs {
		if err := ev.Validate(); err != nil {
			return nil, err
		}
		rec := ev.Clone()
		if rec.ID == "" {
			rec.ID = ids.NewAt(now)
		}
		if _, exists := s.events[rec.ID]; exists {
			return nil, calendar.ErrDuplicate
		}
		if _, dup := batch[rec.ID]; dup {
			return nil, calendar.ErrDuplicate
		}
		batch[rec.ID] = struct{}{}
		rec.Version = 1
		rec.CreatedAt = now
		rec.UpdatedAt = now
		out = append(out, rec)
	}
	for _, rec := range out {
		s.events[rec.ID] = rec.Clone()
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, id string, patch calendar.Patch, expectedVersion int64) (calendar.Event, error) {
	if err := ctx.Err(); err != nil {
		return calendar.Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.events[id]
	if !ok {
		return calendar.Event{}, calendar.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return calendar.Event{}, calendar.ErrStaleVersion
	}
	next := cur.Apply(patch)
	if err := next.Validate(); err != nil {
		return calendar.Event{}, err
	}
	next.Version = cur.Version + 1
	next.UpdatedAt = s.now()
	s.events[id] = next
	return next.Clone(), nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return calendar.ErrNotFound
	}
	delete(s.events, id)
	return nil
}

// Len reports how many events are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// All returns every stored event ordered by start.
func (s *Store) All() []calendar.Event {
	s.mu.RLock()
	out := make([]calendar.Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Clone())
	}
	s.mu.RUnlock()
	calendar.SortByStart(out)
	return out
}
