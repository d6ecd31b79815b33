// Package classify maps caught transport and protocol errors to a
// single FailureReason. It is the only place in the codebase that
// inspects raw errors; every component downstream trusts the assigned
// reason.
package classify

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/duongvq/homelink/internal/core/domain"
)

// Classify returns exactly one FailureReason for err, deterministically
// and without side effects. A nil error yields FailureNone. Errors that
// already carry a reason pass through unchanged.
func Classify(err error) domain.FailureReason {
	if err == nil {
		return domain.FailureNone
	}

	// Already classified at an earlier boundary. Trust it.
	var ce *domain.ClassifiedError
	if errors.As(err, &ce) {
		return ce.Reason
	}

	if s, ok := status.FromError(err); ok && s.Code() != codes.OK {
		return fromGRPCCode(s.Code())
	}

	// Authentication signals take priority over everything else.
	msg := strings.ToLower(err.Error())
	if containsAny(msg, "unauthorized", "authentication failed", "auth failed",
		"invalid credentials", "forbidden", "permission denied", "access denied") {
		return domain.FailureAuth
	}

	// Connection establishment failures.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return domain.FailureNetwork
	}
	if containsAny(msg, "connection refused", "connection reset",
		"no route to host", "no such host", "network is unreachable", "broken pipe") {
		return domain.FailureNetwork
	}

	// Backend-reported internal errors.
	if containsAny(msg, "internal error", "internal server error") {
		return domain.FailureInternal
	}

	// Deadline elapsed.
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.FailureTimeout
	}
	if containsAny(msg, "timeout", "timed out", "deadline exceeded") {
		return domain.FailureTimeout
	}

	return domain.FailureUnknown
}

// Wrap classifies err and attaches the reason so downstream code never
// re-inspects the original error. Classified errors are returned as-is.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var ce *domain.ClassifiedError
	if errors.As(err, &ce) {
		return err
	}
	return domain.NewClassifiedError(Classify(err), err)
}

func fromGRPCCode(code codes.Code) domain.FailureReason {
	switch code {
	case codes.Unauthenticated, codes.PermissionDenied:
		return domain.FailureAuth
	case codes.Unavailable:
		return domain.FailureNetwork
	case codes.Internal, codes.DataLoss:
		return domain.FailureInternal
	case codes.DeadlineExceeded:
		return domain.FailureTimeout
	default:
		return domain.FailureUnknown
	}
}

func containsAny(s string, patterns ...string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
