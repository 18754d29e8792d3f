package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/autocrop/internal/jobs"
	"github.com/fpang/autocrop/internal/metrics"
)

// statusRecorder wraps http.ResponseWriter to capture the status code and
// the number of body bytes written.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.written += int64(n)
	return n, err
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sr, r)
		if r.URL.Path == "/" || strings.HasPrefix(r.URL.Path, "/static/") {
			return
		}
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sr.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only local front-ends and automation tools are expected.
		origin := r.Header.Get("Origin")
		if origin != "" && (strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Expose-Headers", "X-Crop-Outcome, X-Crop-Method, X-Crop-Bounds, X-Original-Size, X-Cropped-Size")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withMetrics emits one EMF line per request with a Route dimension. A nil
// emitter disables it.
func withMetrics(em *metrics.Emitter, next http.Handler) http.Handler {
	if em == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sr, r)
		em.Request(normalizeEndpoint(r.URL.Path), r.Method, sr.statusCode, time.Since(start))
	})
}

// normalizeEndpoint maps request paths to low-cardinality route names.
func normalizeEndpoint(path string) string {
	switch {
	case path == "/", path == "/health", path == "/process",
		path == "/api/crop/sync", path == "/api/crop/async",
		path == "/api/n8n/crop", path == "/api/n8n/async":
		return path
	case strings.HasPrefix(path, "/download/"):
		return "/download/*"
	case strings.HasPrefix(path, "/api/jobs/"):
		if _, action, ok := jobs.ParseRoute(path, "/api/jobs/", jobs.IDPrefix); ok && action != "" {
			return "/api/jobs/*/" + action
		}
		return "/api/jobs/*"
	default:
		return "other"
	}
}
