package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/auth"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/directory"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/stream"
)

var (
	admin   = auth.Actor{UserID: "a1", OrganizationID: "org-1", Role: auth.RoleAdmin}
	seller  = auth.Actor{UserID: "s1", OrganizationID: "org-1", Role: auth.RoleSales}
	worker  = auth.Actor{UserID: "w1", OrganizationID: "org-1", Role: auth.RoleWorker, TeamIDs: []string{"t1"}}
	worker2 = auth.Actor{UserID: "w2", OrganizationID: "org-1", Role: auth.RoleWorker}
)

func testDirectory() *directory.Static {
	return directory.NewStatic(
		directory.Subject{ID: "a1", OrganizationID: "org-1", Kind: directory.KindUser, Role: auth.RoleAdmin, Cities: []string{"Stockholm"}},
		directory.Subject{ID: "s1", OrganizationID: "org-1", Kind: directory.KindUser, Role: auth.RoleSales, Cities: []string{"Stockholm"}},
		directory.Subject{ID: "w1", OrganizationID: "org-1", Kind: directory.KindUser, Role: auth.RoleWorker, Cities: []string{"Malmö"}, TeamIDs: []string{"t1"}},
		directory.Subject{ID: "w2", OrganizationID: "org-1", Kind: directory.KindUser, Role: auth.RoleWorker, Cities: []string{"Göteborg"}},
		directory.Subject{ID: "t1", OrganizationID: "org-1", Kind: directory.KindTeam, Cities: []string{"Malmö"}},
		directory.Subject{ID: "t2", OrganizationID: "org-1", Kind: directory.KindTeam, Cities: []string{"Uppsala"}},
	)
}

// at builds an instant in January 2024. The 1st is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.January, day, hour, minute, 0, 0, time.UTC)
}

func meeting(a calendar.Assignee, start time.Time, dur time.Duration) calendar.Event {
	end := start.Add(dur)
	return calendar.Event{Kind: calendar.KindMeeting, Title: "visit", StartTime: start, EndTime: &end, Assignee: a}
}

type recorder struct {
	mu      sync.Mutex
	changes []stream.Change
}

func (r *recorder) Publish(c stream.Change) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *recorder) types() []stream.ChangeType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]stream.ChangeType, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.Type)
	}
	return out
}

type countingMetrics struct {
	mu        sync.Mutex
	ops       map[string]int
	conflicts int
	overrides int
	rollbacks int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{ops: make(map[string]int)}
}

func (m *countingMetrics) ObserveOperation(op, outcome string, _ time.Duration) {
	m.mu.Lock()
	m.ops[op+"/"+outcome]++
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveConflict(_ string, overridden bool) {
	m.mu.Lock()
	m.conflicts++
	if overridden {
		m.overrides++
	}
	m.mu.Unlock()
}

func (m *countingMetrics) ObserveRollback() {
	m.mu.Lock()
	m.rollbacks++
	m.mu.Unlock()
}

func (m *countingMetrics) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops[key]
}

// mockStore is a calendar.Store driven by testify expectations.
type mockStore struct {
	mock.Mock
}

var _ calendar.Store = (*mockStore)(nil)

func (m *mockStore) ListEvents(ctx context.Context, orgID string, window calendar.Range, filter calendar.AssigneeFilter) ([]calendar.Event, error) {
	args := m.Called(ctx, orgID, window, filter)
	evs, _ := args.Get(0).([]calendar.Event)
	return evs, args.Error(1)
}

func (m *mockStore) Get(ctx context.Context, id string) (calendar.Event, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(calendar.Event), args.Error(1)
}

func (m *mockStore) Insert(ctx context.Context, ev calendar.Event) (calendar.Event, error) {
	args := m.Called(ctx, ev)
	return args.Get(0).(calendar.Event), args.Error(1)
}

func (m *mockStore) InsertMany(ctx context.Context, evs []calendar.Event) ([]calendar.Event, error) {
	args := m.Called(ctx, evs)
	out, _ := args.Get(0).([]calendar.Event)
	return out, args.Error(1)
}

func (m *mockStore) Update(ctx context.Context, id string, patch calendar.Patch, expectedVersion int64) (calendar.Event, error) {
	args := m.Called(ctx, id, patch, expectedVersion)
	return args.Get(0).(calendar.Event), args.Error(1)
}

func (m *mockStore) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}
