package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
)

// ChangeType names what happened to an event.
type ChangeType string

const (
	EventCreated         ChangeType = "event.created"
	EventUpdated         ChangeType = "event.updated"
	EventMovedOptimistic ChangeType = "event.moved.optimistic"
	EventMoveConfirmed   ChangeType = "event.move.confirmed"
	EventMoveRolledBack  ChangeType = "event.move.rolled_back"
	EventDeleted         ChangeType = "event.deleted"
)

// Change is one calendar change pushed to subscribers. Event is nil for deletions.
type Change struct {
	Type           ChangeType      `json:"type"`
	EventID        string          `json:"event_id"`
	OrganizationID string          `json:"organization_id"`
	Event          *calendar.Event `json:"event,omitempty"`
	At             time.Time       `json:"at"`
}

// NewChange stamps a change for ev.
func NewChange(t ChangeType, ev calendar.Event, at time.Time) Change {
	c := Change{Type: t, EventID: ev.ID, OrganizationID: ev.OrganizationID, At: at.UTC()}
	if t != EventDeleted {
		clone := ev.Clone()
		c.Event = &clone
	}
	return c
}

type subscriber struct {
	orgID string
	ch    chan Change
}

// Stream fan-outs calendar changes to all active subscribers (SSE clients).
type Stream struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	next    int
	buffer  int
	dropped atomic.Uint64
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]subscriber), buffer: 16}
}

// Subscribe registers a subscriber for one organisation and returns a channel
// which will receive its changes. The channel is closed when ctx ends.
func (s *Stream) Subscribe(ctx context.Context, orgID string) <-chan Change {
	ch := make(chan Change, s.buffer)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{orgID: orgID, ch: ch}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the change to subscribers of its organisation.
func (s *Stream) Publish(c Change) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.orgID != c.OrganizationID {
			continue
		}
		select {
		case sub.ch <- c:
		default:
			// slow subscriber
			s.dropped.Add(1)
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Dropped reports how many deliveries were skipped for slow subscribers.
func (s *Stream) Dropped() uint64 { return s.dropped.Load() }
