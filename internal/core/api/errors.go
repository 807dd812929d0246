package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/formkeeper/internal/types"
)

// errStore marks a failed write to the rule store. The registry change is
// rolled back before it is returned; clients may retry.
var errStore = errors.New("rule store unavailable")

// Malformed rules are the caller's fault.
var validationErrors = []error{
	types.ErrEmptyRuleName,
	types.ErrMissingCondition,
	types.ErrInvalidLogicalOperator,
	types.ErrTreeTooDeep,
	types.ErrPathTooDeep,
	types.ErrEmptyFieldPath,
	types.ErrTooManyInValues,
	types.ErrTooManyActions,
	types.ErrUnknownActionType,
	types.ErrMissingTarget,
	types.ErrMissingFormula,
}

// toStatus maps domain errors onto gRPC codes:
//   - unknown rule id: NOT_FOUND
//   - duplicate id: ALREADY_EXISTS
//   - validation failure: INVALID_ARGUMENT
//   - store failure: UNAVAILABLE
//   - context expiry: DEADLINE_EXCEEDED / CANCELED
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, types.ErrRuleNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, types.ErrDuplicateRule):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, errStore):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return status.Error(codes.InvalidArgument, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

func invalidArgument(format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}
