package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError marks a failure that may succeed on a later attempt
// (429, 5xx, network timeouts).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// ClassifyStatus wraps err as transient when statusCode is retryable and
// returns it unchanged otherwise.
func ClassifyStatus(err error, statusCode int) error {
	if err == nil {
		return nil
	}
	if IsTransientHTTPStatus(statusCode) {
		return NewTransientError(err, statusCode)
	}
	return err
}

// IsTransient reports whether err, or anything in its chain, is worth
// retrying: an explicit TransientError, a network timeout, a reset or refused
// connection, or one of the usual HTTP client failure messages.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
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

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"transport connection broken",
	"overloaded",
}

// IsRateLimited reports whether err carries an HTTP 429.
func IsRateLimited(err error) bool {
	var te *TransientError
	return errors.As(err, &te) && te.StatusCode == 429
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504, // Gateway Timeout
		529: // Overloaded
		return true
	default:
		return false
	}
}
