package remote

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/auth"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
)

// Client is a calendar.Store backed by a remote EventStore service.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

var _ calendar.Store = (*Client)(nil)

// Dial creates a new client with sensible defaults (insecure transport).
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// Close closes the underlying connection when Dial created it.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := encode(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(outgoingWithIdentity(ctx), fullMethod(method), in, out); err != nil {
		return mapStoreError(err)
	}
	if resp == nil {
		return nil
	}
	return decode(out, resp)
}

func (c *Client) ListEvents(ctx context.Context, orgID string, window calendar.Range, filter calendar.AssigneeFilter) ([]calendar.Event, error) {
	var resp eventsMessage
	if err := c.call(ctx, methodList, newListRequest(orgID, window, filter), &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *Client) Get(ctx context.Context, id string) (calendar.Event, error) {
	var resp eventMessage
	if err := c.call(ctx, methodGet, idRequest{ID: id}, &resp); err != nil {
		return calendar.Event{}, err
	}
	return resp.Event, nil
}

func (c *Client) Insert(ctx context.Context, ev calendar.Event) (calendar.Event, error) {
	var resp eventMessage
	if err := c.call(ctx, methodInsert, eventMessage{Event: ev}, &resp); err != nil {
		return calendar.Event{}, err
	}
	return resp.Event, nil
}

func (c *Client) InsertMany(ctx context.Context, evs []calendar.Event) ([]calendar.Event, error) {
	var resp eventsMessage
	if err := c.call(ctx, methodInsertMany, eventsMessage{Events: evs}, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *Client) Update(ctx context.Context, id string, patch calendar.Patch, expectedVersion int64) (calendar.Event, error) {
	var resp eventMessage
	if err := c.call(ctx, methodUpdate, updateRequest{ID: id, Patch: patch, ExpectedVersion: expectedVersion}, &resp); err != nil {
		return calendar.Event{}, err
	}
	return resp.Event, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.call(ctx, methodDelete, idRequest{ID: id}, nil)
}

// mapStoreError turns gRPC status codes back into calendar sentinels.
func mapStoreError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return calendar.ErrNotFound
	case codes.FailedPrecondition:
		return calendar.ErrStaleVersion
	case codes.AlreadyExists:
		return calendar.ErrDuplicate
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", auth.ErrUnauthorized, st.Message())
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", auth.ErrForbidden, st.Message())
	case codes.InvalidArgument:
		return &calendar.ValidationError{Reason: st.Message()}
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	return err
}

// outgoingWithIdentity forwards the bearer token held by ctx. The server
// derives the caller from it.
func outgoingWithIdentity(ctx context.Context) context.Context {
	token, ok := auth.TokenFromContext(ctx)
	if !ok {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, mdAuthorization, bearerPrefix+token)
}

// WithTimeout returns a context with a default timeout useful for CLI tools.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(parent, d)
}
