package fetchr

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

var (
	// ErrDuplicateService is returned when registering a name that is already taken.
	ErrDuplicateService = errors.New("service already registered")

	// ErrInvalidService is returned when a service cannot be registered at all.
	ErrInvalidService = errors.New("invalid service")
)

// ServiceNotFoundError means that no service is registered (or exposed) under Name.
type ServiceNotFoundError struct {
	Name string
}

func (e *ServiceNotFoundError) Error() string {
	return fmt.Sprintf("service %q is not registered", e.Name)
}

// ConfigError means that a dehydrated state could not be applied. The receiver's state is
// left as it was.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StatusError is an error with an HTTP status attached. Services return it to choose the
// status the middleware responds with; the remote fetcher returns it for failed calls.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP status %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (HTTP status %d)", e.Message, e.StatusCode)
}

// NewStatusError is a shortcut for building a StatusError with a formatted message.
func NewStatusError(statusCode int, format string, args ...interface{}) *StatusError {
	return &StatusError{StatusCode: statusCode, Message: fmt.Sprintf(format, args...)}
}

// IsServiceNotFound reports whether err is, or wraps, a ServiceNotFoundError.
func IsServiceNotFound(err error) bool {
	var nf *ServiceNotFoundError
	return errors.As(err, &nf)
}

// IsValidStatusCode reports whether code can be written as an HTTP response status.
func IsValidStatusCode(code int) bool {
	return code >= 100 && code <= 599
}

// StatusCodeOf maps an error to the HTTP status the middleware reports for it. A StatusError
// whose code is not a valid HTTP status counts as an internal error.
func StatusCodeOf(err error) int {
	var nf *ServiceNotFoundError
	if errors.As(err, &nf) {
		return http.StatusNotFound
	}
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode != 0 {
		if !IsValidStatusCode(se.StatusCode) {
			return http.StatusInternalServerError
		}
		return se.StatusCode
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
