package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MetricsRecorder defines the interface for recording HTTP metrics.
type MetricsRecorder interface {
	RecordHTTPRequest(method, path, status string, duration time.Duration)
	IncActiveConnections()
	DecActiveConnections()
}

// contextMetricsRecorder is implemented by recorders that attach trace
// exemplars.
type contextMetricsRecorder interface {
	RecordHTTPRequestContext(ctx context.Context, method, path, status string, duration time.Duration)
}

// Metrics returns a middleware that records HTTP metrics labelled by route
// pattern, so user and chat ids never become label values.
func Metrics(recorder MetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/metrics") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			recorder.IncActiveConnections()
			defer recorder.DecActiveConnections()

			wrapped := wrapWriter(w)
			record := func(status int) {
				path := routePattern(r)
				if path == r.URL.Path {
					path = normalizePath(path)
				}
				code := strconv.Itoa(status)
				if cr, ok := recorder.(contextMetricsRecorder); ok {
					cr.RecordHTTPRequestContext(r.Context(), r.Method, path, code, time.Since(start))
					return
				}
				recorder.RecordHTTPRequest(r.Method, path, code, time.Since(start))
			}

			defer func() {
				if err := recover(); err != nil {
					record(http.StatusInternalServerError)
					panic(err)
				}
			}()

			next.ServeHTTP(wrapped, r)
			record(wrapped.status)
		})
	}
}

// normalizePath replaces UUIDs and numeric segments of unrouted paths.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if len(part) == 36 && strings.Count(part, "-") == 4 {
			parts[i] = ":id"
			continue
		}
		if _, err := strconv.Atoi(part); err == nil && part != "" {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
