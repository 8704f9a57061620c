package eventsvc

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the caller is not on the allow-list
	// for the action.
	ErrUnauthorized = errors.New("caller is not authorized")
	// ErrRemovalDisabled is returned by RemoveEvents unless the deployment
	// enabled removal at initialization.
	ErrRemovalDisabled = errors.New("event removal is disabled for this deployment")
	// ErrInvalidArgument wraps malformed requests.
	ErrInvalidArgument = errors.New("invalid argument")
)

type action string

const (
	actionPush   action = "push"
	actionRead   action = "read"
	actionRemove action = "remove"
)

func unauthorized(a action) error {
	return fmt.Errorf("%w to %s events", ErrUnauthorized, a)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
