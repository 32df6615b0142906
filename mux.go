package authguard

import (
	"net/http"
	"strings"
)

// ServeMux is a wrapper around http.ServeMux that adds route groups and
// middlewares. It lets a server keep operational endpoints outside the
// guard while every page navigation goes through it.
//
// Usage:
//
//	mux := authguard.NewServeMux()
//	mux.Use(authguard.Logger(logger))
//	mux.Handle("/metrics", promhttp.Handler())
//
//	app := mux.Group("/", sessions.Handler, guard.Handler)
//	app.Handle("/", frontend)
//
//	http.ListenAndServe(":8080", mux)
type ServeMux struct {
	*http.ServeMux
	middlewares []Middleware
}

// NewServeMux creates a new ServeMux instance.
func NewServeMux() *ServeMux {
	return &ServeMux{
		ServeMux: http.NewServeMux(),
	}
}

// Group creates a sub-router mounted at prefix whose handlers run behind
// middlewares. The prefix is stripped before the sub-router sees the path,
// so a group mounted at "/" sees paths unchanged.
func (mux *ServeMux) Group(prefix string, middlewares ...Middleware) *ServeMux {
	prefix = strings.TrimSuffix(prefix, "/")
	subMux := NewServeMux()

	var wrapped http.Handler = subMux
	if prefix != "" {
		wrapped = http.StripPrefix(prefix, subMux)
	}

	mux.Handle(prefix+"/", Chain(wrapped, middlewares...))
	return subMux
}

// Use adds a middleware applied to every route of this mux.
func (mux *ServeMux) Use(mw Middleware) {
	mux.middlewares = append(mux.middlewares, mw)
}

// ServeHTTP applies the middlewares before dispatching to the underlying
// http.ServeMux.
func (mux *ServeMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	Chain(mux.ServeMux, mux.middlewares...).ServeHTTP(w, r)
}
