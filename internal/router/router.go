// Package router fans a domain event out to every route whose source and
// detail-type patterns match it.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"vortex.app/relay/common/logger"
	"vortex.app/relay/internal/domain"
)

// Handler runs one stage for one event and returns the events it emits.
type Handler interface {
	Handle(ctx context.Context, evt domain.Event) ([]domain.Event, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, evt domain.Event) ([]domain.Event, error)

func (f HandlerFunc) Handle(ctx context.Context, evt domain.Event) ([]domain.Event, error) {
	return f(ctx, evt)
}

// Route subscribes a handler to events. Sources match exactly or by "prefix.*";
// an empty pattern list matches everything.
type Route struct {
	Name        string
	Sources     []string
	DetailTypes []domain.EventType
	Emits       []domain.EventType
	Handler     Handler
}

// Matches reports whether the route subscribes to evt.
func (r Route) Matches(evt domain.Event) bool {
	return matchAny(r.Sources, evt.Source) && matchAny(typeStrings(r.DetailTypes), string(evt.DetailType))
}

// Outcome is the result of one route's invocation.
type Outcome struct {
	Route   string
	Emitted []domain.Event
	Err     error
}

// Router holds the subscription table.
type Router struct {
	routes []Route
	stats  *Stats
}

// New validates the table: names must be unique and every route needs a handler.
func New(routes []Route) (*Router, error) {
	seen := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		if r.Name == "" {
			return nil, fmt.Errorf("route without a name")
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("duplicate route %q", r.Name)
		}
		if r.Handler == nil {
			return nil, fmt.Errorf("route %q has no handler", r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	return &Router{routes: routes, stats: newStats()}, nil
}

func (r *Router) Routes() []Route {
	return r.routes
}

func (r *Router) Stats() *Stats {
	return r.stats
}

// Match returns the routes subscribed to evt, restricted to target when set.
func (r *Router) Match(evt domain.Event, target string) []Route {
	var matched []Route
	for _, route := range r.routes {
		if target != "" && route.Name != target {
			continue
		}
		if route.Matches(evt) {
			matched = append(matched, route)
		}
	}
	return matched
}

// Dispatch invokes every matching route concurrently. Routes never observe
// each other's result and nothing is retried here.
func (r *Router) Dispatch(ctx context.Context, evt domain.Event, target string) []Outcome {
	routes := r.Match(evt, target)
	outcomes := make([]Outcome, len(routes))

	var wg sync.WaitGroup
	for i, route := range routes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = r.invoke(ctx, route, evt)
		}()
	}
	wg.Wait()

	return outcomes
}

func (r *Router) invoke(ctx context.Context, route Route, evt domain.Event) (out Outcome) {
	out.Route = route.Name
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Route:     logger.Ptr(route.Name),
		Component: "relay.router",
	})

	defer func() {
		if rec := recover(); rec != nil {
			out.Err = fmt.Errorf("route %s panicked: %v", route.Name, rec)
		}
		if out.Err != nil {
			r.stats.recordFailure(route.Name)
			slog.ErrorContext(ctx, "route failed",
				"error", out.Err,
				"retryable", domain.IsRetryable(out.Err))
			return
		}
		r.stats.recordSuccess(route.Name, len(out.Emitted))
	}()

	emitted, err := route.Handler.Handle(ctx, evt)
	out.Emitted = emitted
	out.Err = err
	return out
}

func matchAny(patterns []string, value string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if match(p, value) {
			return true
		}
	}
	return false
}

func match(pattern, value string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(value, prefix)
	}
	return pattern == value
}

func typeStrings(types []domain.EventType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
