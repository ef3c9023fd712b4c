// Package router maps input events to the handlers that should see them.
package router

import (
	"sort"
	"sync"
)

// Route identifies the origin of an event: the channel it arrived on and
// the session it belongs to.
type Route struct {
	Source    string
	SessionID string
}

// Router resolves which handler ids an event fans out to. Resolution is a
// pure lookup with no side effects; registration order of handler ids does
// not matter, results are always sorted.
//
// Precedence, most specific first:
//
//  1. exact (source, session) binding
//  2. source binding
//  3. the default set
//
// An empty default set means unmatched events fan out to every registered
// handler.
type Router struct {
	mu sync.RWMutex

	bySession map[Route][]string
	bySource  map[string][]string
	defaults  []string
	all       map[string]struct{}
}

// New creates an empty router.
func New() *Router {
	return &Router{
		bySession: make(map[Route][]string),
		bySource:  make(map[string][]string),
		all:       make(map[string]struct{}),
	}
}

// Bind routes events matching route to the given handler ids. A route with
// an empty SessionID binds the source as a whole.
func (r *Router) Bind(route Route, handlerIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range handlerIDs {
		r.all[id] = struct{}{}
	}
	if route.SessionID == "" {
		r.bySource[route.Source] = appendUnique(r.bySource[route.Source], handlerIDs)
		return
	}
	r.bySession[route] = appendUnique(r.bySession[route], handlerIDs)
}

// BindDefault routes otherwise-unmatched events to the given handler ids.
func (r *Router) BindDefault(handlerIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range handlerIDs {
		r.all[id] = struct{}{}
	}
	r.defaults = appendUnique(r.defaults, handlerIDs)
}

// Register makes a handler id known without binding it to any route. It
// participates in broadcast resolution only.
func (r *Router) Register(handlerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all[handlerID] = struct{}{}
}

// Unbind removes all bindings and registration for a handler id.
func (r *Router) Unbind(handlerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.all, handlerID)
	for route, ids := range r.bySession {
		r.bySession[route] = remove(ids, handlerID)
	}
	for source, ids := range r.bySource {
		r.bySource[source] = remove(ids, handlerID)
	}
	r.defaults = remove(r.defaults, handlerID)
}

// Resolve returns the handler ids for a route, sorted. When nothing matches
// and no default set is bound, every registered handler is returned.
func (r *Router) Resolve(route Route) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ids := r.bySession[route]; len(ids) > 0 {
		return sorted(ids)
	}
	if ids := r.bySource[route.Source]; len(ids) > 0 {
		return sorted(ids)
	}
	if len(r.defaults) > 0 {
		return sorted(r.defaults)
	}

	ids := make([]string, 0, len(r.all))
	for id := range r.all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func appendUnique(ids []string, add []string) []string {
	for _, id := range add {
		found := false
		for _, have := range ids {
			if have == id {
				found = true
				break
			}
		}
		if !found {
			ids = append(ids, id)
		}
	}
	return ids
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, have := range ids {
		if have != id {
			out = append(out, have)
		}
	}
	return out
}

func sorted(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}
