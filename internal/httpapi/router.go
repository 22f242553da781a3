package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"duka.app/internal/obs"
)

// Router wraps http.ServeMux and remembers which patterns opted out of the
// authorization gate. It satisfies auth.Exemptions.
type Router struct {
	mux *http.ServeMux

	mu     sync.RWMutex
	exempt map[string]bool
}

func NewRouter() *Router {
	return &Router{
		mux:    http.NewServeMux(),
		exempt: make(map[string]bool),
	}
}

// Handle registers a gated handler.
func (rt *Router) Handle(pattern string, h http.Handler) { rt.handle(pattern, h, false) }

// HandleExempt registers a handler the gate lets through without checks.
func (rt *Router) HandleExempt(pattern string, h http.Handler) { rt.handle(pattern, h, true) }

func (rt *Router) HandleFunc(pattern string, h http.HandlerFunc) { rt.Handle(pattern, h) }

func (rt *Router) HandleExemptFunc(pattern string, h http.HandlerFunc) { rt.HandleExempt(pattern, h) }

func (rt *Router) handle(pattern string, h http.Handler, exempt bool) {
	rt.mux.Handle(pattern, h)
	rt.mu.Lock()
	rt.exempt[pattern] = exempt
	rt.mu.Unlock()
	obs.RegisterRoute(strings.TrimSuffix(pattern, "{$}"))
}

// Exempt resolves path through the mux and reports whether the matched
// pattern was registered with HandleExempt. Unmatched paths are not exempt.
// A path the mux would redirect (a missing trailing slash) takes the
// exemption of its redirect target.
func (rt *Router) Exempt(path string) bool {
	pattern := rt.match(path)
	rt.mu.RLock()
	exempt, registered := rt.exempt[pattern]
	rt.mu.RUnlock()
	if registered || pattern == "" {
		return exempt
	}
	// For redirects the mux reports the target path rather than a pattern.
	target := rt.match(pattern)
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.exempt[target]
}

func (rt *Router) match(path string) string {
	req := &http.Request{Method: http.MethodGet, URL: &url.URL{Path: path}}
	_, pattern := rt.mux.Handler(req)
	return pattern
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}
