package logger

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Middleware logs one "http" record per request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		begin := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		fields := map[string]any{
			"op":         r.Method + " " + r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"latency_ms": time.Since(begin).Milliseconds(),
		}
		if id := middleware.GetReqID(r.Context()); id != "" {
			fields["req_id"] = id
		}
		if ww.Status() >= 500 {
			ErrorJ("http", fields)
			return
		}
		InfoJ("http", fields)
	})
}
