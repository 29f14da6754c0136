package middleware

import (
	"net/http"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

func LogRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if spanCtx := trace.SpanContextFromContext(r.Context()); spanCtx.HasTraceID() {
				log.Tracef(" ====> request [%s] path: [%s] [UA: %s] [trace: %s]", r.Method, r.URL.Path, r.Header.Get("User-Agent"), spanCtx.TraceID())
			} else {
				log.Tracef(" ====> request [%s] path: [%s] [UA: %s]", r.Method, r.URL.Path, r.Header.Get("User-Agent"))
			}
			next.ServeHTTP(w, r)
		})
	}
}
