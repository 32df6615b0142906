package authguard

import "net/http"

// Middleware wraps an http.Handler. SessionManager.Handler, Guard.Handler
// and Logger all have this shape.
type Middleware func(http.Handler) http.Handler

// Chain wraps h with middlewares, the first one being the outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
