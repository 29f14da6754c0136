package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/2beens/cutroom-admin/internal/telemetry/metrics"
	"github.com/2beens/cutroom-admin/pkg"

	log "github.com/sirupsen/logrus"
)

// PanicRecovery keeps a panicking handler from taking the fake backend down,
// and answers with the same envelope the admin api uses for errors.
func PanicRecovery(metricsManager *metrics.Manager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(respWriter http.ResponseWriter, req *http.Request) {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("http: panic serving %s: %v\n%s", req.URL.Path, r, debug.Stack())
					if metricsManager != nil {
						metricsManager.CounterHandleRequestPanic.Inc()
					}
					pkg.WriteJSONResponse(respWriter, http.StatusInternalServerError, map[string]any{
						"success": false,
						"message": "internal error",
					})
				}
			}()

			next.ServeHTTP(respWriter, req)
		})
	}
}
