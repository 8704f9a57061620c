package grpcserver

import (
	"context"
	"errors"

	"github.com/rzbill/evstore/internal/eventstore"
	"github.com/rzbill/evstore/internal/runtime"
	eventsvc "github.com/rzbill/evstore/internal/services/events"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, eventsvc.ErrUnauthorized):
		return codes.PermissionDenied
	case errors.Is(err, eventsvc.ErrInvalidArgument):
		return codes.InvalidArgument
	case errors.Is(err, eventsvc.ErrRemovalDisabled),
		errors.Is(err, eventstore.ErrMigrationInProgress):
		return codes.FailedPrecondition
	case errors.Is(err, runtime.ErrClosed):
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}
