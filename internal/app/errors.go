package app

import (
	"errors"
	"fmt"
)

// ErrConfigurationMissing marks a feature whose dependency was not wired.
// The feature degrades and the rest of the service keeps serving.
var ErrConfigurationMissing = errors.New("configuration missing")

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// RouteFailure wraps an error raised by a dispatched route handler.
type RouteFailure struct {
	Route string
	Err   error
}

func (e *RouteFailure) Error() string {
	return fmt.Sprintf("route %s failed: %v", e.Route, e.Err)
}

func (e *RouteFailure) Unwrap() error {
	return e.Err
}

func missing(feature string) error {
	return fmt.Errorf("%w: %s", ErrConfigurationMissing, feature)
}
