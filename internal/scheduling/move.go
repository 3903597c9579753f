package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/auth"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/obs"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/stream"
)

type moveResult struct {
	ev  calendar.Event
	err error
}

// MoveEvent reschedules id to newStart keeping its duration. The move is
// published optimistically (see Local) and then confirmed against the store
// with the version just read. A failed confirmation withdraws the optimistic
// value, republishes the prior one unchanged and returns a *PersistenceError
// with RolledBack set.
//
// Confirmation runs detached from ctx: if the caller gives up, the move
// still either commits or rolls back.
func (c *Coordinator) MoveEvent(ctx context.Context, actor auth.Actor, id string, newStart time.Time) (out calendar.Event, err error) {
	started := time.Now()
	if actor, err = c.resolveActor(ctx, actor); err != nil {
		c.observe("move", started, &err)
		return calendar.Event{}, err
	}
	unlock := c.locks.lock(id)
	prior, err := c.prepareMove(ctx, actor, id)
	if err != nil {
		unlock()
		c.observe("move", started, &err)
		return calendar.Event{}, err
	}

	patch := calendar.Reschedule(prior, newStart)
	moved := prior.Apply(patch)
	if err := c.detect(ctx, "move", calendar.CandidateFor(moved), prior.OrganizationID, false); err != nil {
		unlock()
		c.observe("move", started, &err)
		return calendar.Event{}, err
	}

	snapshot := prior.Clone()
	c.view.pin(moved)
	c.publish(stream.EventMovedOptimistic, moved)

	done := make(chan moveResult, 1)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		defer unlock()
		r := c.confirmMove(context.WithoutCancel(ctx), actor, snapshot, patch)
		c.observe("move", started, &r.err)
		done <- r
	}()

	select {
	case r := <-done:
		return r.ev, r.err
	case <-ctx.Done():
		return calendar.Event{}, fmt.Errorf("move %s still confirming: %w", id, ctx.Err())
	}
}

// prepareMove reads the current stored value and authorizes the actor
// against it. The caller holds the id lock, so no local move is in flight.
func (c *Coordinator) prepareMove(ctx context.Context, actor auth.Actor, id string) (calendar.Event, error) {
	prior, err := c.store.Get(ctx, id)
	if err != nil {
		return calendar.Event{}, c.storeFailure("get", err)
	}
	policy, err := c.policyFor(ctx, actor, prior.Assignee)
	if err != nil {
		return calendar.Event{}, err
	}
	if err := auth.RequireView(policy, actor, prior); err != nil {
		return calendar.Event{}, err
	}
	if err := auth.RequireAssign(policy, actor, prior.Assignee); err != nil {
		return calendar.Event{}, err
	}
	return prior, nil
}

func (c *Coordinator) confirmMove(ctx context.Context, actor auth.Actor, snapshot calendar.Event, patch calendar.Patch) moveResult {
	saved, err := c.store.Update(ctx, snapshot.ID, patch, snapshot.Version)
	if err != nil {
		c.view.release(snapshot.ID)
		c.metrics.ObserveRollback()
		c.publish(stream.EventMoveRolledBack, snapshot)
		obs.Log(obs.LevelWarn, "move rolled back", map[string]any{
			"event_id": snapshot.ID,
			"version":  snapshot.Version,
			"error":    err.Error(),
		})
		c.record(ctx, actor, "calendar.event.move_rolled_back", snapshot, map[string]any{"error": err.Error()})
		return moveResult{err: &PersistenceError{Op: "move", Err: err, RolledBack: true}}
	}
	c.view.release(saved.ID)
	c.publish(stream.EventMoveConfirmed, saved)
	c.record(ctx, actor, "calendar.event.moved", saved, map[string]any{
		"from": snapshot.StartTime.UTC().Format(time.RFC3339),
	})
	return moveResult{ev: saved}
}
