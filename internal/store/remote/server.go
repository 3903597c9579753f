package remote

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/auth"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/obs"
)

// EventStoreServer is the server side of the EventStore service.
type EventStoreServer interface {
	ListEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Insert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InsertMany(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the EventStore service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EventStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodList, Handler: unaryHandler(methodList, EventStoreServer.ListEvents)},
		{MethodName: methodGet, Handler: unaryHandler(methodGet, EventStoreServer.Get)},
		{MethodName: methodInsert, Handler: unaryHandler(methodInsert, EventStoreServer.Insert)},
		{MethodName: methodInsertMany, Handler: unaryHandler(methodInsertMany, EventStoreServer.InsertMany)},
		{MethodName: methodUpdate, Handler: unaryHandler(methodUpdate, EventStoreServer.Update)},
		{MethodName: methodDelete, Handler: unaryHandler(methodDelete, EventStoreServer.Delete)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "crmcal/v1/event_store",
}

type unaryMethod func(EventStoreServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EventStoreServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(EventStoreServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Register exposes store on s.
func Register(s *grpc.Server, store calendar.Store) {
	s.RegisterService(&ServiceDesc, NewServer(store))
}

// Server adapts a calendar.Store to EventStoreServer.
type Server struct {
	store calendar.Store
}

var _ EventStoreServer = (*Server)(nil)

func NewServer(store calendar.Store) *Server { return &Server{store: store} }

func (s *Server) ListEvents(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req listRequest
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if org, err := callerOrg(ctx); err != nil {
		return nil, err
	} else if req.OrganizationID != org {
		return nil, status.Errorf(codes.PermissionDenied, "organization %q is not the caller's", req.OrganizationID)
	}
	evs, err := s.store.ListEvents(ctx, req.OrganizationID, req.window(), req.filter())
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(eventsMessage{Events: evs})
}

func (s *Server) Get(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idRequest
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	ev, err := s.owned(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return encode(eventMessage{Event: ev})
}

func (s *Server) Insert(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req eventMessage
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := sameOrg(ctx, req.Event); err != nil {
		return nil, err
	}
	ev, err := s.store.Insert(ctx, req.Event)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(eventMessage{Event: ev})
}

func (s *Server) InsertMany(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req eventsMessage
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := sameOrg(ctx, req.Events...); err != nil {
		return nil, err
	}
	evs, err := s.store.InsertMany(ctx, req.Events)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(eventsMessage{Events: evs})
}

func (s *Server) Update(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req updateRequest
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if _, err := s.owned(ctx, req.ID); err != nil {
		return nil, err
	}
	ev, err := s.store.Update(ctx, req.ID, req.Patch, req.ExpectedVersion)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(eventMessage{Event: ev})
}

func (s *Server) Delete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idRequest
	if err := decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if _, err := s.owned(ctx, req.ID); err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, req.ID); err != nil {
		return nil, toStatus(err)
	}
	return encode(empty{})
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, calendar.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, calendar.ErrStaleVersion):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, calendar.ErrDuplicate):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, calendar.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	obs.Log(obs.LevelError, "event store call failed", map[string]any{"error": err.Error()})
	return status.Error(codes.Internal, "internal error")
}

// AuthInterceptor guards the EventStore service. The raw store bypasses
// visibility policies, so only a valid admin bearer token in the
// authorization metadata is admitted; its actor is put into the context and
// scopes every call to the token's organization. Other services, such as
// health, pass through.
func AuthInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
		return handler(ctx, req)
	}
	token, err := bearerToken(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	claims, err := auth.ParseAndValidate(token)
	switch {
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnknownRole):
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	case err != nil:
		obs.Log(obs.LevelError, "event store authentication failed", map[string]any{"error": err.Error()})
		return nil, status.Error(codes.Internal, "authentication error")
	}
	actor := claims.Actor()
	if actor.Role != auth.RoleAdmin {
		return nil, status.Errorf(codes.PermissionDenied, "role %s may not use the event store", actor.Role)
	}
	ctx = auth.ContextWithActor(ctx, actor)
	ctx = auth.ContextWithToken(ctx, token)
	return handler(ctx, req)
}

func bearerToken(ctx context.Context) (string, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get(mdAuthorization)
	if len(values) == 0 {
		return "", errors.New("missing bearer token")
	}
	header := strings.TrimSpace(values[0])
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// callerOrg is the organization every call is confined to.
func callerOrg(ctx context.Context) (string, error) {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok || actor.OrganizationID == "" {
		return "", status.Error(codes.Unauthenticated, "no caller identity")
	}
	return actor.OrganizationID, nil
}

// owned loads id and hides it when it belongs to another organization.
func (s *Server) owned(ctx context.Context, id string) (calendar.Event, error) {
	org, err := callerOrg(ctx)
	if err != nil {
		return calendar.Event{}, err
	}
	ev, err := s.store.Get(ctx, id)
	if err != nil {
		return calendar.Event{}, toStatus(err)
	}
	if ev.OrganizationID != org {
		return calendar.Event{}, status.Error(codes.NotFound, calendar.ErrNotFound.Error())
	}
	return ev, nil
}

func sameOrg(ctx context.Context, evs ...calendar.Event) error {
	org, err := callerOrg(ctx)
	if err != nil {
		return err
	}
	for _, ev := range evs {
		if ev.OrganizationID != org {
			return status.Errorf(codes.PermissionDenied, "event belongs to organization %q", ev.OrganizationID)
		}
	}
	return nil
}
