package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/citaplan/citaplan/pkg/logger"
)

// HealthCheckHandler serves liveness and readiness probes from one endpoint.
// With no dependency checks it answers 200 "ALIVE". With checks supplied it
// runs each one and answers 200 "READY", or 500 "NOT_READY" on the first
// failure.
func HealthCheckHandler(ctx context.Context, log *slog.Logger, checks ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(checks) == 0 {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ALIVE"))
			return
		}

		for _, check := range checks {
			if err := check(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed", logger.Error(err))
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("NOT_READY"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	}
}
