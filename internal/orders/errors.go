package orders

import (
	"errors"

	"github.com/aws/smithy-go"
)

var (
	// ErrAlreadyExists is returned by Create when any of the order's tokens is taken.
	ErrAlreadyExists = errors.New("token already exists")
	// ErrStatusMismatch is returned by UpdateStatus when the order is not in the expected status.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrNotFound is returned by UpdateStatus when no live order has the token.
	ErrNotFound = errors.New("test order not found")
)

// errorCode extracts the service error code for log-friendly wrapping.
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return "unknown"
}
