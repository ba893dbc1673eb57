// Package httpapi serves the producer's intake endpoints and the consumer's
// outcome lookup over chi routers.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/drblury/quoteflow/internal/runtime/jsoncodec"
	"github.com/drblury/quoteflow/internal/runtime/logging"
)

// HeaderErrorDescription carries the reason a request was rejected.
const HeaderErrorDescription = "X-Error-Description"

const maxBodyBytes = 64 << 10

func newRouter(logger logging.ServiceLogger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func requestLogger(logger logging.ServiceLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request", logging.LogFields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			})
		})
	}
}

func reject(w http.ResponseWriter, status int, description string) {
	w.Header().Set(HeaderErrorDescription, description)
	w.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	raw, err := jsoncodec.Marshal(v)
	if err != nil {
		reject(w, http.StatusInternalServerError, "encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}
