package auth

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrLockAcquireTimeout is returned when the storage lock cannot be acquired in time.
	// It is the only transient error class the session bootstrap retries.
	ErrLockAcquireTimeout = errors.New("auth: acquiring storage lock timed out")
	// ErrNotConfigured is returned by network operations when no backend URL or key is set.
	ErrNotConfigured = errors.New("auth: backend not configured")
	// ErrSessionMissing is returned when an operation needs a session and none is available.
	ErrSessionMissing = &APIError{Status: http.StatusBadRequest, Code: "session_missing", Message: "Auth session missing!"}
	// ErrInvalidScope is returned by SignOut for an unknown scope.
	ErrInvalidScope = errors.New("auth: invalid sign-out scope")
)

// APIError is a non-2xx response from the auth backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth: %s (status %d, code %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("auth: %s (status %d)", e.Message, e.Status)
}

// StatusCode returns the HTTP status of the response.
func (e *APIError) StatusCode() int {
	return e.Status
}
