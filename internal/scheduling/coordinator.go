// Package scheduling coordinates calendar mutations: authorization, conflict
// checks against the Event Store, persistence, audit and change publication.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/audience"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/audit"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/auth"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/directory"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/obs"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/stream"
)

// Coordinator is safe for concurrent use. Operations on the same event id
// are serialised.
type Coordinator struct {
	store calendar.Store
	dir   directory.Lookup

	now          func() time.Time
	pub          Publisher
	metrics      Metrics
	recurring    RecurringPolicy
	maxInstances int

	locks    *keyedMutex
	view     *localView
	inflight sync.WaitGroup
}

func New(store calendar.Store, dir directory.Lookup, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:        store,
		dir:          dir,
		now:          time.Now,
		pub:          nopPublisher{},
		metrics:      nopMetrics{},
		recurring:    PartialWithWarnings,
		maxInstances: calendar.DefaultMaxInstances,
		locks:        newKeyedMutex(),
		view:         newLocalView(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Local returns the optimistic value of a move of id that the store has not
// confirmed yet.
func (c *Coordinator) Local(id string) (calendar.Event, bool) {
	return c.view.get(id)
}

// Wait blocks until detached move confirmations have finished.
func (c *Coordinator) Wait() { c.inflight.Wait() }

// CreateEvent persists ev for actor. Overlaps with the assignee's events are
// rejected with a *ConflictError unless override is set.
func (c *Coordinator) CreateEvent(ctx context.Context, actor auth.Actor, ev calendar.Event, override bool) (out calendar.Event, err error) {
	defer c.observe("create", time.Now(), &err)

	if actor, err = c.resolveActor(ctx, actor); err != nil {
		return calendar.Event{}, err
	}
	if ev.OrganizationID != "" && ev.OrganizationID != actor.OrganizationID {
		return calendar.Event{}, &auth.AuthorizationError{Actor: actor, Action: "create in", Target: "organization " + ev.OrganizationID}
	}
	ev.OrganizationID = actor.OrganizationID
	ev.ID = ""
	ev.Version = 0

	if err := ev.Validate(); err != nil {
		return calendar.Event{}, err
	}
	policy, err := c.policyFor(ctx, actor, ev.Assignee)
	if err != nil {
		return calendar.Event{}, err
	}
	if err := auth.RequireAssign(policy, actor, ev.Assignee); err != nil {
		return calendar.Event{}, err
	}
	if err := c.detect(ctx, "create", calendar.CandidateFor(ev), ev.OrganizationID, override); err != nil {
		return calendar.Event{}, err
	}

	saved, err := c.store.Insert(ctx, ev)
	if err != nil {
		return calendar.Event{}, c.storeFailure("insert", err)
	}
	c.record(ctx, actor, "calendar.event.created", saved, map[string]any{"override": override})
	c.publish(stream.EventCreated, saved)
	return saved, nil
}

// GetEvent returns one event if actor may see it.
func (c *Coordinator) GetEvent(ctx context.Context, actor auth.Actor, id string) (calendar.Event, error) {
	actor, err := c.resolveActor(ctx, actor)
	if err != nil {
		return calendar.Event{}, err
	}
	ev, err := c.store.Get(ctx, id)
	if err != nil {
		return calendar.Event{}, c.storeFailure("get", err)
	}
	policy, err := c.policyFor(ctx, actor, ev.Assignee)
	if err != nil {
		return calendar.Event{}, err
	}
	if err := auth.RequireView(policy, actor, ev); err != nil {
		return calendar.Event{}, err
	}
	return ev, nil
}

// UpdateEvent applies patch to the stored event id.
func (c *Coordinator) UpdateEvent(ctx context.Context, actor auth.Actor, id string, patch calendar.Patch, override bool) (calendar.Event, error) {
	return c.update(ctx, actor, id, patch, override, 0)
}

// UpdateEventIfVersion is UpdateEvent guarded by the version the caller last
// saw. A mismatch fails with calendar.ErrStaleVersion before anything is
// written.
func (c *Coordinator) UpdateEventIfVersion(ctx context.Context, actor auth.Actor, id string, version int64, patch calendar.Patch, override bool) (calendar.Event, error) {
	return c.update(ctx, actor, id, patch, override, version)
}

func (c *Coordinator) update(ctx context.Context, actor auth.Actor, id string, patch calendar.Patch, override bool, ifVersion int64) (out calendar.Event, err error) {
	defer c.observe("update", time.Now(), &err)

	if actor, err = c.resolveActor(ctx, actor); err != nil {
		return calendar.Event{}, err
	}
	unlock := c.locks.lock(id)
	defer unlock()

	cur, err := c.store.Get(ctx, id)
	if err != nil {
		return calendar.Event{}, c.storeFailure("get", err)
	}
	next := cur.Apply(patch)
	policy, err := c.policyFor(ctx, actor, cur.Assignee, next.Assignee)
	if err != nil {
		return calendar.Event{}, err
	}
	if err := auth.RequireView(policy, actor, cur); err != nil {
		return calendar.Event{}, err
	}
	if ifVersion > 0 && ifVersion != cur.Version {
		return calendar.Event{}, c.storeFailure("update", fmt.Errorf("%w: have %d, want %d", calendar.ErrStaleVersion, cur.Version, ifVersion))
	}
	if patch.IsEmpty() {
		return cur, nil
	}
	if err := next.Validate(); err != nil {
		return calendar.Event{}, err
	}
	if err := auth.RequireAssign(policy, actor, next.Assignee); err != nil {
		return calendar.Event{}, err
	}
	if err := c.detect(ctx, "update", calendar.CandidateFor(next), cur.OrganizationID, override); err != nil {
		return calendar.Event{}, err
	}

	saved, err := c.store.Update(ctx, id, patch, cur.Version)
	if err != nil {
		return calendar.Event{}, c.storeFailure("update", err)
	}
	c.record(ctx, actor, "calendar.event.updated", saved, map[string]any{"override": override})
	c.publish(stream.EventUpdated, saved)
	return saved, nil
}

// DeleteEvent removes id. The actor must be able to see the event and to
// assign work to its assignee.
func (c *Coordinator) DeleteEvent(ctx context.Context, actor auth.Actor, id string) (err error) {
	defer c.observe("delete", time.Now(), &err)

	if actor, err = c.resolveActor(ctx, actor); err != nil {
		return err
	}
	unlock := c.locks.lock(id)
	defer unlock()

	cur, err := c.store.Get(ctx, id)
	if err != nil {
		return c.storeFailure("get", err)
	}
	policy, err := c.policyFor(ctx, actor, cur.Assignee)
	if err != nil {
		return err
	}
	if err := auth.RequireView(policy, actor, cur); err != nil {
		return err
	}
	if err := auth.RequireAssign(policy, actor, cur.Assignee); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return c.storeFailure("delete", err)
	}
	c.record(ctx, actor, "calendar.event.deleted", cur, nil)
	c.publish(stream.EventDeleted, cur)
	return nil
}

// VisibleEvents lists the events of actor's organisation in window that the
// role policy allows, narrowed by the audience filter and sorted by start.
func (c *Coordinator) VisibleEvents(ctx context.Context, actor auth.Actor, filter audience.FilterState, window calendar.Range) (out []calendar.Event, err error) {
	defer c.observe("list", time.Now(), &err)

	if actor, err = c.resolveActor(ctx, actor); err != nil {
		return nil, err
	}
	evs, err := c.store.ListEvents(ctx, actor.OrganizationID, window, calendar.AssigneeFilter{})
	if err != nil {
		return nil, c.storeFailure("list", err)
	}
	assignees := make([]calendar.Assignee, 0, len(evs))
	for _, ev := range evs {
		assignees = append(assignees, ev.Assignee)
	}
	policy, err := c.policyFor(ctx, actor, assignees...)
	if err != nil {
		return nil, err
	}
	visible := auth.FilterVisible(policy, actor, evs)

	rel, err := audience.Resolve(ctx, c.dir, filter)
	if err != nil {
		return nil, fmt.Errorf("resolve audience: %w", err)
	}
	cities := audience.NewCityResolver(c.dir)
	narrowed := audience.Narrow(rel, visible, func(ev calendar.Event) []string {
		return cities.CitiesOf(ctx, ev)
	})
	if err := cities.Err(); err != nil {
		return nil, fmt.Errorf("resolve cities: %w", err)
	}
	calendar.SortByStart(narrowed)
	return narrowed, nil
}

// CanView reports whether actor's role policy lets it see ev.
func (c *Coordinator) CanView(ctx context.Context, actor auth.Actor, ev calendar.Event) (bool, error) {
	actor, err := c.resolveActor(ctx, actor)
	if err != nil {
		return false, err
	}
	policy, err := c.policyFor(ctx, actor, ev.Assignee)
	if err != nil {
		return false, err
	}
	return policy.CanView(actor, ev), nil
}

// CheckConflicts reports what cand would collide with without writing
// anything. A non-empty teamID also checks that team's calendar.
func (c *Coordinator) CheckConflicts(ctx context.Context, actor auth.Actor, cand calendar.Candidate, teamID string) (calendar.ConflictResult, error) {
	actor, err := c.resolveActor(ctx, actor)
	if err != nil {
		return calendar.ConflictResult{}, err
	}
	if err := cand.Assignee.Validate(); err != nil {
		return calendar.ConflictResult{}, err
	}
	if cand.EndTime != nil && cand.EndTime.Before(cand.StartTime) {
		return calendar.ConflictResult{}, &calendar.ValidationError{Field: "end_time", Reason: "must not be before start_time"}
	}
	policy, err := c.policyFor(ctx, actor, cand.Assignee)
	if err != nil {
		return calendar.ConflictResult{}, err
	}
	if err := auth.RequireAssign(policy, actor, cand.Assignee); err != nil {
		return calendar.ConflictResult{}, err
	}
	if teamID != "" {
		if err := auth.RequireAssign(policy, actor, calendar.TeamAssignee(teamID)); err != nil {
			return calendar.ConflictResult{}, err
		}
	}

	window := candidateWindow(cand)
	pool, err := c.pool(ctx, actor.OrganizationID, cand.Assignee, window)
	if err != nil {
		return calendar.ConflictResult{}, err
	}
	if teamID != "" {
		team, err := c.pool(ctx, actor.OrganizationID, calendar.TeamAssignee(teamID), window)
		if err != nil {
			return calendar.ConflictResult{}, err
		}
		pool = append(pool, team...)
	}
	return calendar.CheckUserAndTeam(cand, teamID, pool), nil
}

// detect loads the assignee's pool for the candidate window and rejects the
// candidate on overlap unless override is set.
func (c *Coordinator) detect(ctx context.Context, op string, cand calendar.Candidate, orgID string, override bool) error {
	if cand.Assignee.IsNone() {
		return nil
	}
	pool, err := c.pool(ctx, orgID, cand.Assignee, candidateWindow(cand))
	if err != nil {
		return err
	}
	res := calendar.DetectConflicts(cand, pool)
	if !res.Conflict {
		return nil
	}
	c.metrics.ObserveConflict(op, override)
	if override {
		obs.Log(obs.LevelInfo, "conflict overridden", map[string]any{
			"op":        op,
			"assignee":  cand.Assignee.String(),
			"colliding": len(res.Colliding),
		})
		return nil
	}
	return &ConflictError{Colliding: res.Colliding}
}

func (c *Coordinator) pool(ctx context.Context, orgID string, a calendar.Assignee, window calendar.Range) ([]calendar.Event, error) {
	if a.IsNone() {
		return nil, nil
	}
	evs, err := c.store.ListEvents(ctx, orgID, window, calendar.FilterFor(a))
	if err != nil {
		return nil, c.storeFailure("list", err)
	}
	return evs, nil
}

func candidateWindow(cand calendar.Candidate) calendar.Range {
	end := cand.StartTime
	if cand.EndTime != nil {
		end = *cand.EndTime
	}
	return calendar.Range{From: cand.StartTime, To: end}
}

// policyFor resolves the actor's policy with a roster covering the users
// among assignees.
func (c *Coordinator) policyFor(ctx context.Context, actor auth.Actor, assignees ...calendar.Assignee) (auth.VisibilityPolicy, error) {
	var roster auth.Roster
	if actor.Role == auth.RoleSales {
		ids := make([]string, 0, len(assignees))
		for _, a := range assignees {
			if id := a.UserID(); id != "" {
				ids = append(ids, id)
			}
		}
		m, err := directory.RosterFor(ctx, c.dir, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve roster: %w", err)
		}
		roster = m
	}
	return auth.PolicyFor(actor.Role, roster)
}

// resolveActor checks actor against the directory. Role and team membership
// come from the directory entry; whatever the caller claimed is replaced.
func (c *Coordinator) resolveActor(ctx context.Context, actor auth.Actor) (auth.Actor, error) {
	if actor.UserID == "" || actor.OrganizationID == "" {
		return auth.Actor{}, fmt.Errorf("%w: actor has no user or organisation", auth.ErrUnauthorized)
	}
	sub, err := c.dir.Subject(ctx, actor.UserID)
	if errors.Is(err, directory.ErrNotFound) {
		return auth.Actor{}, fmt.Errorf("%w: user %s is not in the directory", auth.ErrUnauthorized, actor.UserID)
	}
	if err != nil {
		return auth.Actor{}, fmt.Errorf("resolve actor: %w", err)
	}
	if sub.Kind != directory.KindUser || sub.OrganizationID != actor.OrganizationID {
		return auth.Actor{}, fmt.Errorf("%w: user %s does not belong to organization %s", auth.ErrUnauthorized, actor.UserID, actor.OrganizationID)
	}
	if sub.Role.Valid() {
		actor.Role = sub.Role
	}
	actor.TeamIDs = append([]string(nil), sub.TeamIDs...)
	return actor, nil
}

func (c *Coordinator) storeFailure(op string, err error) error {
	if errors.Is(err, calendar.ErrNotFound) || errors.Is(err, calendar.ErrStaleVersion) {
		return persistence(op, err)
	}
	obs.Log(obs.LevelWarn, "event store call failed", map[string]any{"op": op, "error": err.Error()})
	return persistence(op, err)
}

func (c *Coordinator) observe(op string, started time.Time, err *error) {
	c.metrics.ObserveOperation(op, outcome(*err), time.Since(started))
}

func (c *Coordinator) publish(t stream.ChangeType, ev calendar.Event) {
	c.pub.Publish(stream.NewChange(t, ev, c.now()))
}

// record writes the audit entry of a mutation on behalf of actor.
func (c *Coordinator) record(ctx context.Context, actor auth.Actor, event string, ev calendar.Event, extra map[string]any) {
	if _, ok := auth.ActorFromContext(ctx); !ok {
		ctx = auth.ContextWithActor(ctx, actor)
	}
	fields := audit.EventFields(ev)
	for k, v := range extra {
		fields[k] = v
	}
	if err := audit.LogEvent(ctx, event, fields); err != nil {
		obs.Log(obs.LevelError, "audit write failed", map[string]any{"event": event, "error": err.Error()})
	}
}
