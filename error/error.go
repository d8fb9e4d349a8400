package error

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ApiError carries the HTTP status of a failed call to a record store endpoint.
type ApiError struct {
	StatusCode int
	Msg        string
}

func (e *ApiError) Error() string {
	return e.Msg
}

// NewApiError builds an ApiError whose message encodes the status class.
func NewApiError(statusCode int) *ApiError {
	switch {
	case statusCode >= 500:
		return &ApiError{StatusCode: statusCode, Msg: fmt.Sprintf("server error: %d", statusCode)}
	case statusCode >= 400:
		return &ApiError{StatusCode: statusCode, Msg: fmt.Sprintf("client error: %d", statusCode)}
	default:
		return &ApiError{StatusCode: statusCode, Msg: fmt.Sprintf("unexpected status: %d", statusCode)}
	}
}

var connectionErrors = []string{
	"connection refused",
	"no such host",
	"host unreachable",
	"i/o timeout",
	"no route to host",
	"network is unreachable",
	"operation timed out",
	"eof",
	"connection reset by peer",
	"dial tcp",
	"tls handshake",
	"context deadline exceeded",
}

// IsConnectionError reports whether err is likely caused by network
// connectivity rather than by the remote record itself.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded:
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, msg := range connectionErrors {
		if strings.Contains(errStr, msg) {
			return true
		}
	}

	return false
}

// IsServerError reports whether err wraps a 5xx ApiError.
func IsServerError(err error) bool {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 && apiErr.StatusCode < 600
	}

	return false
}
