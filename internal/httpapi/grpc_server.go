package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/obs"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/store/remote"
)

// GRPCServer serves the standard health protocol next to the event store
// service. Check probes readiness on every call so the reported status is
// never older than the request.
type GRPCServer struct {
	*health.Server

	readiness readinessChecker
	store     calendar.Store
}

// NewGRPCServer creates the gRPC service wrapper. store may be nil, in
// which case only health is served.
func NewGRPCServer(r readinessChecker, store calendar.Store) *GRPCServer {
	return &GRPCServer{
		Server:    health.NewServer(),
		readiness: r,
		store:     store,
	}
}

// Register attaches the health service and, when configured, the event
// store service to s.
func (s *GRPCServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s)
	if s.store != nil {
		remote.Register(srv, s.store)
	}
}

// Check evaluates readiness before answering from the health registry.
func (s *GRPCServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	s.refresh(ctx)
	return s.Server.Check(ctx, req)
}

// Monitor keeps the health registry current until ctx ends so streaming
// Watch clients see readiness changes.
func (s *GRPCServer) Monitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	s.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			s.Shutdown()
			return
		case <-t.C:
			s.refresh(ctx)
		}
	}
}

func (s *GRPCServer) refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.readiness.Check(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		obs.SetReady(false)
		obs.Log(obs.LevelWarn, "grpc readiness check failed", map[string]any{"error": err.Error()})
	} else {
		obs.SetReady(true)
	}
	s.SetServingStatus("", status)
	if s.store != nil {
		s.SetServingStatus(remote.ServiceName, status)
	}
}
