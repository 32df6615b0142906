package authguard

import (
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Logger returns a middleware writing one structured record per request
// with the status, latency, client IP, method and path. Redirects also
// carry their location, which is where guard decisions show up.
//
// Usage:
//
//	mux := authguard.NewServeMux()
//	mux.Use(authguard.Logger(slog.Default()))
func Logger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rw, r)

			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			attrs := []any{
				"status", rw.Status(),
				"latency", time.Since(start),
				"ip", ip,
				"method", r.Method,
				"path", r.URL.Path,
			}
			if loc := rw.Header().Get("Location"); loc != "" {
				attrs = append(attrs, "location", loc)
			}

			level := slog.LevelInfo
			if rw.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http request", attrs...)
		})
	}
}
