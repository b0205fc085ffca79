package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"

	"github.com/cli/go-gh/v2/pkg/api"
)

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	HTTPStatus() int
}

// IsRetryable reports whether err is a transient failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *api.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusForbidden {
			return isRateLimited(httpErr.Headers)
		}
		return IsRetryableStatus(httpErr.StatusCode)
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return IsRetryableStatus(sc.HTTPStatus())
	}

	// Deadline of a single attempt. Cancellation is never retried.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// IsRetryableStatus reports whether an HTTP status code signals a
// transient condition.
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// isRateLimited detects GitHub's secondary rate limit, which is reported as
// a 403 with an exhausted quota header or a Retry-After header.
func isRateLimited(h http.Header) bool {
	if h == nil {
		return false
	}
	return h.Get("X-RateLimit-Remaining") == "0" || h.Get("Retry-After") != ""
}
