package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ogurasousui/codex-onboarding/internal/core/onboarding"
)

func toStatusError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, onboarding.ErrValidation), errors.Is(err, onboarding.ErrInvalidStatus):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, onboarding.ErrInvalidEmployee), errors.Is(err, onboarding.ErrCaseClosed):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, onboarding.ErrCaseNotFound), errors.Is(err, onboarding.ErrTaskNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, onboarding.ErrCaseAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, onboarding.ErrConcurrencyConflict), errors.Is(err, onboarding.ErrVersionConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, onboarding.ErrDependencyUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
