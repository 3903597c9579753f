package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/auth"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/stream"
)

const keepAliveInterval = 25 * time.Second

// Stream pushes calendar changes for the caller's organisation as
// Server-Sent Events. Changes to events the caller may not see are skipped;
// deletions carry only the id and always pass.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	if a.stream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// The server write timeout would cut a long-lived stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	ch := a.stream.Subscribe(ctx, actor.OrganizationID)

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case change, open := <-ch:
			if !open {
				return
			}
			if !a.visibleChange(r, actor, change) {
				continue
			}
			payload, err := json.Marshal(change)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", change.Type, payload)
			flusher.Flush()
		}
	}
}

func (a *API) visibleChange(r *http.Request, actor auth.Actor, c stream.Change) bool {
	if c.Event == nil {
		return true
	}
	visible, err := a.coord.CanView(r.Context(), actor, *c.Event)
	if err != nil {
		logHandlerError(r, "stream visibility check failed", err)
		return false
	}
	return visible
}
