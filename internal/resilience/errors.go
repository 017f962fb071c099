// Package resilience provides bounded retries for page loads.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/sells-group/sisplade-cli/internal/scrape"
)

// TransientError wraps an error that is safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError marks err as retryable.
func NewTransientError(err error) *TransientError {
	return &TransientError{Err: err}
}

// transientPatterns are Chromium network error codes and Go network errors
// that usually clear up on a second attempt.
var transientPatterns = []string{
	"net::err_connection_reset",
	"net::err_connection_closed",
	"net::err_connection_refused",
	"net::err_connection_timed_out",
	"net::err_timed_out",
	"net::err_empty_response",
	"net::err_network_changed",
	"net::err_internet_disconnected",
	"net::err_name_not_resolved",
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"i/o timeout",
}

// IsTransient reports whether err is worth retrying. Parse failures and
// readiness timeouts are never transient; page loads that failed on the
// network or hit the load deadline are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	switch scrape.KindOf(err) {
	case scrape.KindParse, scrape.KindTimeout, scrape.KindIO:
		return false
	case scrape.KindNavigation:
		if errors.Is(err, context.DeadlineExceeded) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
