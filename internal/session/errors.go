package session

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAlreadyInitialized = errors.New("session already initialized")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrUnauthorized       = errors.New("authorization rejected")
)

// StatusError is returned by the authorized client for every non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("admin api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("admin api: %d %s", e.StatusCode, e.Message)
}

// Unwrap lets callers use errors.Is(err, ErrUnauthorized) on 401 responses.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}
