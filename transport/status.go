package transport

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/adamgarcia4/goLearning/agencysync/agency"
)

// toStatus maps agency errors onto gRPC status codes at the server edge
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, agency.ErrKeyNotFound):
		code = codes.NotFound
	case errors.Is(err, agency.ErrUnavailable):
		code = codes.Unavailable
	case errors.Is(err, agency.ErrBadVersion):
		code = codes.InvalidArgument
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// fromStatus is the inverse of toStatus on the client side
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return agency.ErrKeyNotFound
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", agency.ErrUnavailable, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", agency.ErrBadVersion, st.Message())
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	case codes.Canceled:
		return context.Canceled
	}
	return err
}
