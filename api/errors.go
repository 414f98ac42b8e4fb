package api

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a non-2xx service response.
type StatusError struct {
	Status  int
	Message string
	// Roles is the caller's current role list when the service included one.
	Roles []string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// Forbidden reports a permission rejection.
func (e *StatusError) Forbidden() bool { return e.Status == http.StatusForbidden }

// Unauthorized reports a rejected or expired token.
func (e *StatusError) Unauthorized() bool { return e.Status == http.StatusUnauthorized }

// AsStatus unwraps err into a *StatusError.
func AsStatus(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
