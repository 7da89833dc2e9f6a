package router

import (
	"errors"
	"fmt"
)

// Routing and translation error kinds.
var (
	ErrRouteNotFound           = errors.New("route not found")
	ErrDuplicateRoute          = errors.New("duplicate route")
	ErrInvalidFunctionResponse = errors.New("invalid function response")
)

// RouteError wraps a failure with the operation and route key involved.
type RouteError struct {
	Op    string // Operation that failed (e.g. "register", "handle")
	Route string // Route key involved, if known
	Err   error  // Underlying error
}

func (e *RouteError) Error() string {
	if e.Route != "" {
		return fmt.Sprintf("router %s failed for route '%s': %v", e.Op, e.Route, e.Err)
	}
	return fmt.Sprintf("router %s failed: %v", e.Op, e.Err)
}

func (e *RouteError) Unwrap() error {
	return e.Err
}

// NewRouteError creates a new RouteError.
func NewRouteError(op, route string, err error) *RouteError {
	return &RouteError{Op: op, Route: route, Err: err}
}

// IsNotFound reports whether err means no route matched the request.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRouteNotFound)
}

// IsDuplicate reports whether err was caused by registering a route key twice.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateRoute)
}

// IsInvalidResponse reports whether err was caused by a function returning a
// terminal value without the mandatory statusCode.
func IsInvalidResponse(err error) bool {
	return errors.Is(err, ErrInvalidFunctionResponse)
}
