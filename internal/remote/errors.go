package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable is returned while the circuit breaker is open or the server fails.
	ErrUnavailable = errors.New("remote unavailable")
)

// APIError is a non-2xx PostgREST response.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("postgrest: http %d", e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("postgrest: http %d: %s (%s)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("postgrest: http %d: %s", e.Status, e.Message)
}

// Is maps HTTP status classes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnavailable:
		return e.Status >= 500
	}
	return false
}

// clientFault reports whether err is the caller's fault and should not trip the breaker.
func clientFault(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500
}
