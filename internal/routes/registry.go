// Package routes is the named handler registry that pages dispatch through.
package routes

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
)

var ErrUnknownRoute = errors.New("unknown route")

// Call carries per-dispatch context that is not part of the payload.
type Call struct {
	CurrentUser string
}

// Handler serves one named route. Handlers may block on I/O and must honor
// ctx cancellation.
type Handler func(ctx context.Context, payload map[string]any, call Call) (any, error)

type Route struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Handler     Handler `json:"-"`
}

// PanicError is returned when a handler panics.
type PanicError struct {
	Route string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("route %s panicked: %v", e.Route, e.Value)
}

// Registry maps route names to handlers. Registration is idempotent: the
// first handler registered under a name wins.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]Route
}

func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]Route)}
}

// RegisterOnce adds the route unless the name is taken and reports whether
// it was added.
func (r *Registry) RegisterOnce(name string, handler Handler, description, category string) bool {
	if name == "" || handler == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routes[name]; exists {
		return false
	}
	r.routes[name] = Route{Name: name, Description: description, Category: category, Handler: handler}
	return true
}

func (r *Registry) Lookup(name string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[name]
	return route, ok
}

// List returns the routes ordered by category, then name.
func (r *Registry) List() []Route {
	r.mu.RLock()
	out := make([]Route, 0, len(r.routes))
	for _, route := range r.routes {
		out = append(out, route)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Dispatch runs the named handler in the caller's goroutine.
func (r *Registry) Dispatch(ctx context.Context, name string, payload map[string]any, call Call) (result any, err error) {
	route, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoute, name)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			result = nil
			err = &PanicError{Route: name, Value: recovered, Stack: debug.Stack()}
		}
	}()
	return route.Handler(ctx, payload, call)
}
