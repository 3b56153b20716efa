package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"orgcal/internal/metrics"
)

const apiKeyHeader = "X-API-Key"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware counts requests by route template and status code.
func (s *HTTPServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		metrics.IncHTTP(route, strconv.Itoa(rec.status))
	})
}

// authMiddleware requires the configured API key. An empty key disables the check.
func (s *HTTPServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			got := r.Header.Get(apiKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
