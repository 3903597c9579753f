package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/auth"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/obs"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/scheduling"
)

type errorResponse struct {
	Error      string           `json:"error"`
	RequestID  string           `json:"request_id,omitempty"`
	Colliding  []calendar.Event `json:"colliding,omitempty"`
	RolledBack bool             `json:"rolled_back,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg, RequestID: RequestIDFromContext(r.Context())})
}

// decodeJSON reads a single JSON object and rejects unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	if dec.More() {
		return errors.New("request body must hold a single JSON object")
	}
	return nil
}

// writeDecodeError answers 413 when MaxBodyBytes cut the body short.
func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	writeError(w, r, http.StatusBadRequest, err.Error())
}

func handleSchedulingError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: err.Error(), RequestID: RequestIDFromContext(r.Context())}
	var code int

	var conflict *scheduling.ConflictError
	var pe *scheduling.PersistenceError
	switch {
	case errors.As(err, &conflict):
		code = http.StatusConflict
		resp.Colliding = conflict.Colliding
	case errors.Is(err, calendar.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, calendar.ErrDuplicate):
		code = http.StatusConflict
	case errors.Is(err, calendar.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, calendar.ErrStaleVersion):
		code = http.StatusPreconditionFailed
		if errors.As(err, &pe) {
			resp.RolledBack = pe.RolledBack
		}
	case errors.Is(err, auth.ErrUnauthorized):
		code = http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, auth.ErrUnknownRole):
		code = http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		code = http.StatusGatewayTimeout
	case errors.As(err, &pe):
		code = http.StatusBadGateway
		resp.RolledBack = pe.RolledBack
	default:
		code = http.StatusInternalServerError
		resp.Error = "internal error"
	}
	if code >= http.StatusInternalServerError {
		logHandlerError(r, "request failed", err)
	}
	writeJSON(w, code, resp)
}

func logHandlerError(r *http.Request, msg string, err error) {
	obs.Log(obs.LevelError, msg, map[string]any{
		"request_id": RequestIDFromContext(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
		"error":      err.Error(),
	})
}
