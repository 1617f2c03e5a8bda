package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session client
var (
	// Credential errors (shown inline to the user)
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeleted     = errors.New("account deleted")
	ErrInvalidRequest     = errors.New("invalid request")

	// Refresh errors (always end the session)
	ErrRefreshFailed  = errors.New("token refresh failed")
	ErrNoRefreshToken = errors.New("no refresh token available")

	// Session errors
	ErrNoSession      = errors.New("no active session")
	ErrSessionExpired = errors.New("session expired")
	ErrStaleSession   = errors.New("session changed while request was in flight")

	// OAuth errors
	ErrUnknownProvider = errors.New("unknown oauth provider")
	ErrInvalidState    = errors.New("invalid oauth state")
	ErrOAuthDenied     = errors.New("oauth login cancelled")
	ErrMissingCode     = errors.New("missing authorization code")

	// Tenant errors
	ErrTenantNotFound = errors.New("tenant not found")

	// General errors
	ErrNotFound = errors.New("not found")
)

// HTTPError is returned for backend responses outside the 2xx range that are not
// recovered by the refresh path.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// NetworkError wraps transport failures (DNS, connection refused, timeouts).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RefreshError marks a failed refresh round trip. It wraps ErrRefreshFailed or
// ErrNoRefreshToken plus the underlying cause.
type RefreshError struct {
	Err   error
	Cause error
}

func (e *RefreshError) Error() string {
	if e.Cause == nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Err, e.Cause)
}

func (e *RefreshError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// IsRefreshError reports whether err came out of the refresh path
func IsRefreshError(err error) bool {
	var re *RefreshError
	return errors.As(err, &re)
}

// IsCredentialError reports whether a login was rejected by the backend
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrAccountDeleted)
}

// StatusCode extracts the HTTP status from an HTTPError chain, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
