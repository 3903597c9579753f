package scheduling

import (
	"context"
	"time"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/auth"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/stream"
)

// InstanceOutcome is the result for one expanded instance. Conflicts is
// empty when the instance was free.
type InstanceOutcome struct {
	Event     calendar.Event   `json:"event"`
	Conflicts []calendar.Event `json:"conflicts,omitempty"`
}

// RecurringResult lists every instance in chronological order.
type RecurringResult struct {
	Outcomes []InstanceOutcome `json:"outcomes"`
}

// Conflicted counts the instances that overlap something.
func (r RecurringResult) Conflicted() int {
	n := 0
	for _, o := range r.Outcomes {
		if len(o.Conflicts) > 0 {
			n++
		}
	}
	return n
}

// Events returns the persisted instances.
func (r RecurringResult) Events() []calendar.Event {
	out := make([]calendar.Event, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		out = append(out, o.Event)
	}
	return out
}

// CreateRecurring expands req into independent events and persists them in
// one batch. Each instance is checked against the store and against the
// siblings generated before it. Under PartialWithWarnings every instance is
// written and conflicts are reported per instance; under AllOrNothing any
// conflict aborts the batch unless override is set.
func (c *Coordinator) CreateRecurring(ctx context.Context, actor auth.Actor, req calendar.RecurrenceRequest, override bool) (res RecurringResult, err error) {
	defer c.observe("create_recurring", time.Now(), &err)

	if actor, err = c.resolveActor(ctx, actor); err != nil {
		return RecurringResult{}, err
	}
	base := req.Base
	if base.OrganizationID != "" && base.OrganizationID != actor.OrganizationID {
		return RecurringResult{}, &auth.AuthorizationError{Actor: actor, Action: "create in", Target: "organization " + base.OrganizationID}
	}
	base.OrganizationID = actor.OrganizationID
	base.ID = ""
	base.Version = 0
	req.Base = base

	instances, err := calendar.Expand(req, calendar.WithMaxInstances(c.maxInstances))
	if err != nil {
		return RecurringResult{}, err
	}
	policy, err := c.policyFor(ctx, actor, base.Assignee)
	if err != nil {
		return RecurringResult{}, err
	}
	if err := auth.RequireAssign(policy, actor, base.Assignee); err != nil {
		return RecurringResult{}, err
	}
	if len(instances) == 0 {
		return RecurringResult{}, nil
	}

	var pool []calendar.Event
	if !base.Assignee.IsNone() {
		window := calendar.Range{From: instances[0].StartTime, To: instances[len(instances)-1].End()}
		if pool, err = c.pool(ctx, base.OrganizationID, base.Assignee, window); err != nil {
			return RecurringResult{}, err
		}
	}

	outcomes := make([]InstanceOutcome, len(instances))
	var colliding []calendar.Event
	for i, inst := range instances {
		found := calendar.DetectConflicts(calendar.CandidateFor(inst), pool)
		outcomes[i] = InstanceOutcome{Event: inst, Conflicts: found.Colliding}
		colliding = append(colliding, found.Colliding...)
		pool = append(pool, inst)
	}

	if len(colliding) > 0 {
		c.metrics.ObserveConflict("create_recurring", override)
		if c.recurring == AllOrNothing && !override {
			calendar.SortByStart(colliding)
			return RecurringResult{}, &ConflictError{Colliding: colliding}
		}
	}

	saved, err := c.store.InsertMany(ctx, instances)
	if err != nil {
		return RecurringResult{}, c.storeFailure("insert_many", err)
	}
	for i := range saved {
		outcomes[i].Event = saved[i]
		c.publish(stream.EventCreated, saved[i])
	}
	res = RecurringResult{Outcomes: outcomes}
	c.record(ctx, actor, "calendar.event.recurring_created", saved[0], map[string]any{
		"frequency":  string(req.Frequency),
		"interval":   req.Interval,
		"instances":  len(saved),
		"conflicted": res.Conflicted(),
		"policy":     c.recurring.String(),
		"override":   override,
	})
	return res, nil
}
