package remote

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/auth"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/store/memory"
)

const bufSize = 1024 * 1024

type recordedActors struct {
	mu     sync.Mutex
	actors []auth.Actor
}

func (r *recordedActors) interceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	return AuthInterceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		if a, ok := auth.ActorFromContext(ctx); ok {
			r.mu.Lock()
			r.actors = append(r.actors, a)
			r.mu.Unlock()
		}
		return handler(ctx, req)
	})
}

func startBufGRPC(t *testing.T, store calendar.Store) (*Client, *recordedActors) {
	t.Helper()
	t.Setenv("CRMCAL_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	rec := &recordedActors{}
	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer(grpc.UnaryInterceptor(rec.interceptor))
	Register(server, store)

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
		server.GracefulStop()
		_ = listener.Close()
	})
	return client, rec
}

func TestRoundTrip(t *testing.T) {
	client, rec := startBufGRPC(t, memory.New())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = withToken(t, ctx, auth.Actor{UserID: "u1", OrganizationID: "org-1", Role: auth.RoleAdmin, TeamIDs: []string{"t1", "t2"}})

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	created, err := client.Insert(ctx, calendar.Event{
		OrganizationID: "org-1",
		Kind:           calendar.KindMeeting,
		Title:          "Kickoff",
		StartTime:      start,
		EndTime:        &end,
		Assignee:       calendar.UserAssignee("u1"),
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if created.ID == "" || created.Version != 1 || !created.EndTime.Equal(end) {
		t.Fatalf("unexpected record: %+v", created)
	}

	batch, err := client.InsertMany(ctx, []calendar.Event{
		{OrganizationID: "org-1", Kind: calendar.KindReminder, StartTime: start.Add(24 * time.Hour), Assignee: calendar.TeamAssignee("t1")},
		{OrganizationID: "org-1", Kind: calendar.KindTask, StartTime: start.Add(48 * time.Hour)},
	})
	if err != nil || len(batch) != 2 {
		t.Fatalf("InsertMany: %v %+v", err, batch)
	}
	if batch[0].EndTime != nil || batch[0].Assignee != calendar.TeamAssignee("t1") {
		t.Fatalf("point event not preserved: %+v", batch[0])
	}

	got, err := client.Get(ctx, created.ID)
	if err != nil || got.Title != "Kickoff" {
		t.Fatalf("Get: %v %+v", err, got)
	}

	listed, err := client.ListEvents(ctx, "org-1", calendar.Range{From: start, To: start.Add(30 * time.Hour)}, calendar.AssigneeFilter{UserIDs: []string{"u1"}, TeamIDs: []string{"t1"}})
	if err != nil || len(listed) != 2 {
		t.Fatalf("ListEvents: %v %+v", err, listed)
	}

	moved, err := client.Update(ctx, created.ID, calendar.Reschedule(created, start.Add(2*time.Hour)), created.Version)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if moved.Version != 2 || moved.Duration() != time.Hour {
		t.Fatalf("unexpected update: %+v", moved)
	}
	if _, err := client.Update(ctx, created.ID, calendar.Patch{}, created.Version); !errors.Is(err, calendar.ErrStaleVersion) {
		t.Fatalf("expected ErrStaleVersion, got %v", err)
	}

	if err := client.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := client.Get(ctx, created.ID); !errors.Is(err, calendar.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := client.Insert(ctx, calendar.Event{OrganizationID: "org-1", Kind: "call", StartTime: start}); !errors.Is(err, calendar.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.actors) == 0 {
		t.Fatalf("identity was not propagated")
	}
	first := rec.actors[0]
	if first.UserID != "u1" || first.OrganizationID != "org-1" || first.Role != auth.RoleAdmin || len(first.TeamIDs) != 2 {
		t.Fatalf("unexpected propagated actor: %+v", first)
	}
}

func withToken(t *testing.T, ctx context.Context, actor auth.Actor) context.Context {
	t.Helper()
	token, _, err := auth.GenerateToken(actor, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return auth.ContextWithToken(ctx, token)
}

func TestEventStoreRequiresAdminToken(t *testing.T) {
	store := memory.New()
	client, rec := startBufGRPC(t, store)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seeded, err := store.Insert(ctx, calendar.Event{OrganizationID: "org-1", Kind: calendar.KindTask, StartTime: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := client.Get(ctx, seeded.ID); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized without a token, got %v", err)
	}
	if _, err := client.Get(auth.ContextWithToken(ctx, "forged"), seeded.ID); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for a bad token, got %v", err)
	}
	worker := withToken(t, ctx, auth.Actor{UserID: "w1", OrganizationID: "org-1", Role: auth.RoleWorker})
	if _, err := client.Get(worker, seeded.ID); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a worker token, got %v", err)
	}

	foreign := withToken(t, ctx, auth.Actor{UserID: "a2", OrganizationID: "org-2", Role: auth.RoleAdmin})
	if _, err := client.Get(foreign, seeded.ID); !errors.Is(err, calendar.ErrNotFound) {
		t.Fatalf("other organizations must not see the event, got %v", err)
	}
	if err := client.Delete(foreign, seeded.ID); !errors.Is(err, calendar.ErrNotFound) {
		t.Fatalf("other organizations must not delete the event, got %v", err)
	}
	if _, err := client.ListEvents(foreign, "org-1", calendar.Range{}, calendar.AssigneeFilter{}); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden listing another organization, got %v", err)
	}
	if _, err := client.Insert(foreign, calendar.Event{OrganizationID: "org-1", Kind: calendar.KindTask, StartTime: seeded.StartTime}); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden inserting into another organization, got %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("rejected calls must not write, store has %d events", store.Len())
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, a := range rec.actors {
		if a.OrganizationID != "org-2" || a.Role != auth.RoleAdmin {
			t.Fatalf("only the admin token may reach the store, saw %+v", a)
		}
	}
}

func TestMapStoreError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want error
	}{
		{"not found", status.Error(codes.NotFound, "not found"), calendar.ErrNotFound},
		{"stale", status.Error(codes.FailedPrecondition, "stale"), calendar.ErrStaleVersion},
		{"duplicate", status.Error(codes.AlreadyExists, "dup"), calendar.ErrDuplicate},
		{"invalid", status.Error(codes.InvalidArgument, "bad kind"), calendar.ErrValidation},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), context.DeadlineExceeded},
		{"unauthenticated", status.Error(codes.Unauthenticated, "missing bearer token"), auth.ErrUnauthorized},
		{"denied", status.Error(codes.PermissionDenied, "worker"), auth.ErrForbidden},
		{"pass through", status.Error(codes.Internal, "internal"), status.Error(codes.Internal, "internal")},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := mapStoreError(tc.err)
			if !errors.Is(got, tc.want) {
				t.Fatalf("mapStoreError() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestToStatusHidesInternalErrors(t *testing.T) {
	st, _ := status.FromError(toStatus(errors.New("password=secret")))
	if st.Code() != codes.Internal || st.Message() != "internal error" {
		t.Fatalf("unexpected status: %v", st)
	}
	st, _ = status.FromError(toStatus(calendar.ErrStaleVersion))
	if st.Code() != codes.FailedPrecondition {
		t.Fatalf("unexpected status: %v", st)
	}
}
