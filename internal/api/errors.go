package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized is the local precondition failure returned when an
// operation that needs an authenticated session is invoked while anonymous.
// It never reaches the network.
var ErrUnauthorized = errors.New("not signed in")

// APIError is a structured rejection from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server error (%d): %s", e.Status, http.StatusText(e.Status))
}

// NetworkError is a transport-level failure. The client never retries these.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func statusOf(err error) (int, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status, true
	}
	return 0, false
}

// IsAuthorization reports whether err is an expired/invalid credential
// rejection. Surfaced to callers only after the one-shot refresh failed.
func IsAuthorization(err error) bool {
	status, ok := statusOf(err)
	return ok && status == http.StatusUnauthorized
}

// IsValidation reports whether err is a request the server rejected as
// invalid (duplicate email, malformed fields and the like).
func IsValidation(err error) bool {
	status, ok := statusOf(err)
	return ok && (status == http.StatusBadRequest ||
		status == http.StatusConflict ||
		status == http.StatusUnprocessableEntity)
}

// IsNotFound reports whether err means the id operated on no longer exists.
func IsNotFound(err error) bool {
	status, ok := statusOf(err)
	return ok && status == http.StatusNotFound
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
