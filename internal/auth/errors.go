package auth

import (
	"errors"
	"fmt"
)

var (
	ErrForbidden    = errors.New("auth: forbidden")
	ErrUnknownRole  = errors.New("auth: unknown role")
	ErrUnauthorized = errors.New("auth: unauthorized")
)

// AuthorizationError describes a denied action. It matches ErrForbidden.
type AuthorizationError struct {
	Actor  Actor
	Action string
	Target string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("auth: %s (role %s) may not %s %s", e.Actor.UserID, e.Actor.Role, e.Action, e.Target)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrForbidden }

func forbidden(actor Actor, action, target string) error {
	return &AuthorizationError{Actor: actor, Action: action, Target: target}
}
