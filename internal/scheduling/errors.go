package scheduling

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/calendar"
)

var (
	ErrConflict    = errors.New("scheduling conflict")
	ErrPersistence = errors.New("event store failure")
)

// ConflictError lists the events a candidate collides with. Retrying with
// override set accepts the overlap.
type ConflictError struct {
	Colliding []calendar.Event
}

func (e *ConflictError) Error() string {
	ids := make([]string, 0, len(e.Colliding))
	for _, ev := range e.Colliding {
		if ev.ID != "" {
			ids = append(ids, ev.ID)
		}
	}
	if len(ids) == 0 {
		return fmt.Sprintf("%s with %d event(s)", ErrConflict, len(e.Colliding))
	}
	return fmt.Sprintf("%s with %s", ErrConflict, strings.Join(ids, ", "))
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// PersistenceError wraps an Event Store failure. RolledBack is set when an
// optimistic local change was restored.
type PersistenceError struct {
	Op         string
	Err        error
	RolledBack bool
}

func (e *PersistenceError) Error() string {
	msg := fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
	if e.RolledBack {
		msg += " (rolled back)"
	}
	return msg
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// outcome labels an operation result for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, calendar.ErrValidation):
		return "invalid"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "denied"
	}
}
