package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"local-api-gateway/internal/event"
	"local-api-gateway/internal/invoker"
)

// Route binds one "<METHOD> <path>" key to an invocable function. Matching
// is an exact string comparison: no wildcards, no path parameters.
type Route struct {
	Key      string
	Method   string
	Path     string
	Function invoker.Function
}

// FunctionInvoker runs one function invocation to completion. Satisfied by
// *invoker.Invoker; tests substitute fakes.
type FunctionInvoker interface {
	Invoke(ctx context.Context, fn invoker.Function, payload []byte) (*invoker.Result, error)
}

// Router owns the route table and drives each request through event
// synthesis, sandbox invocation and response translation. The table is
// written only during registration; request handling reads it concurrently
// without coordination.
type Router struct {
	routes map[string]Route
	order  []string
	inv    FunctionInvoker
}

// New creates a Router dispatching invocations to inv.
func New(inv FunctionInvoker) *Router {
	return &Router{
		routes: make(map[string]Route),
		inv:    inv,
	}
}

// Register adds routes to the table. A key that is already present fails
// with ErrDuplicateRoute: the loader guarantees uniqueness, this guards
// against it being bypassed.
func (r *Router) Register(routes []Route) error {
	for _, route := range routes {
		key := route.Key
		if key == "" {
			key = RouteKey(route.Method, route.Path)
			route.Key = key
		}
		if _, exists := r.routes[key]; exists {
			return NewRouteError("register", key, ErrDuplicateRoute)
		}
		r.routes[key] = route
		r.order = append(r.order, key)
	}
	return nil
}

// Routes returns the registered routes in registration order.
func (r *Router) Routes() []Route {
	out := make([]Route, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.routes[key])
	}
	return out
}

// Handle dispatches one request: exact route lookup, event synthesis,
// sandbox invocation, response translation. A miss returns
// ErrRouteNotFound before anything else happens; every other failure
// surfaces as an error for the host layer to map onto a 500.
func (r *Router) Handle(ctx context.Context, req event.Request) (*Response, error) {
	key := RouteKey(req.Method, req.Path)

	route, ok := r.routes[key]
	if !ok {
		return nil, NewRouteError("handle", key, ErrRouteNotFound)
	}

	e, err := event.Build(req)
	if err != nil {
		return nil, NewRouteError("handle", key, err)
	}
	payload, err := e.Marshal()
	if err != nil {
		return nil, NewRouteError("handle", key, fmt.Errorf("serializing event: %w", err))
	}

	logrus.WithFields(logrus.Fields{
		"route":    key,
		"function": route.Function.Name,
	}).Info("Invoking function")

	result, err := r.inv.Invoke(ctx, route.Function, payload)
	if err != nil {
		return nil, NewRouteError("handle", key, err)
	}

	logrus.WithFields(logrus.Fields{
		"route":       key,
		"function":    route.Function.Name,
		"exit_status": result.ExitStatus,
		"output":      result.Stdout,
	}).Debug("Function run finished")

	resp, err := translate(result)
	if err != nil {
		return nil, NewRouteError("translate", key, err)
	}
	return resp, nil
}

// RouteKey builds the canonical "<METHOD> <path>" table key.
func RouteKey(method, path string) string {
	return strings.TrimSpace(method) + " " + strings.TrimSpace(path)
}
