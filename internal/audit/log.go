package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/auth"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if actor, ok := auth.ActorFromContext(ctx); ok {
		entry["user_id"] = actor.UserID
		entry["organization_id"] = actor.OrganizationID
		entry["role"] = string(actor.Role)
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	entry["fields"] = copyFields

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

// EventFields summarises a calendar event for an audit entry. Presentation
// payload is left out.
func EventFields(ev calendar.Event) map[string]any {
	fields := map[string]any{
		"event_id":   ev.ID,
		"kind":       string(ev.Kind),
		"start_time": ev.StartTime.UTC().Format(time.RFC3339),
		"assignee":   ev.Assignee.String(),
		"version":    ev.Version,
	}
	if ev.EndTime != nil {
		fields["end_time"] = ev.EndTime.UTC().Format(time.RFC3339)
	}
	return fields
}
