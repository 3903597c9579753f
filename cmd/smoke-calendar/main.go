package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/auth"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/directory"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/ids"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/scheduling"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/store/remote"
)

// smoke-calendar drives the scheduling core against a running event store
// over gRPC: create, reject an overlap, move, delete. It signs its own admin
// token, so CRMCAL_AUTH_SECRET must match the server's.
func main() {
	addr := os.Getenv("CRMCAL_GRPC_ADDR")
	if addr == "" {
		addr = "localhost:9090"
	}

	client, err := remote.Dial(addr)
	if err != nil {
		log.Fatalf("dial event store at %s: %v", addr, err)
	}
	defer client.Close()

	org := "smoke-" + ids.New()
	actor := auth.Actor{UserID: "smoke-admin", OrganizationID: org, Role: auth.RoleAdmin}
	dir := directory.NewStatic(
		directory.Subject{ID: actor.UserID, OrganizationID: org, Kind: directory.KindUser, Role: auth.RoleAdmin},
		directory.Subject{ID: "smoke-worker", OrganizationID: org, Kind: directory.KindUser, Role: auth.RoleWorker},
	)
	coord := scheduling.New(client, dir)
	defer coord.Wait()

	token, _, err := auth.GenerateToken(actor, 5*time.Minute)
	if err != nil {
		log.Fatalf("sign smoke token: %v", err)
	}
	ctx := auth.ContextWithToken(auth.ContextWithActor(context.Background(), actor), token)
	ctx, cancel := remote.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now().UTC().Truncate(time.Hour).Add(24 * time.Hour)
	end := start.Add(time.Hour)
	ev, err := coord.CreateEvent(ctx, actor, calendar.Event{
		Kind:      calendar.KindMeeting,
		Title:     "smoke",
		StartTime: start,
		EndTime:   &end,
		Assignee:  calendar.UserAssignee("smoke-worker"),
	}, false)
	if err != nil {
		log.Fatalf("create: %v", err)
	}

	overlapEnd := end.Add(30 * time.Minute)
	_, err = coord.CreateEvent(ctx, actor, calendar.Event{
		Kind:      calendar.KindMeeting,
		StartTime: start.Add(30 * time.Minute),
		EndTime:   &overlapEnd,
		Assignee:  calendar.UserAssignee("smoke-worker"),
	}, false)
	if !errors.Is(err, scheduling.ErrConflict) {
		log.Fatalf("expected conflict, got %v", err)
	}

	moved, err := coord.MoveEvent(ctx, actor, ev.ID, start.Add(3*time.Hour))
	if err != nil {
		log.Fatalf("move: %v", err)
	}
	if moved.Duration() != time.Hour || moved.Version != ev.Version+1 {
		log.Fatalf("unexpected moved event: %+v", moved)
	}

	if err := coord.DeleteEvent(ctx, actor, ev.ID); err != nil {
		log.Fatalf("delete: %v", err)
	}
	if _, err := client.Get(ctx, ev.ID); !errors.Is(err, calendar.ErrNotFound) {
		log.Fatalf("expected deleted event to be gone, got %v", err)
	}

	fmt.Printf("✅ calendar smoke test passed: org=%s event=%s\n", org, ev.ID)
}
