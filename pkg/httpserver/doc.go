// Package httpserver wraps net/http with graceful shutdown, env-driven
// timeouts and probe handlers.
//
// Server construction goes through New or NewFromConfig with functional
// options (WithAddr, WithShutdownTimeout, WithLogger, lifecycle hooks). Run
// starts the listener and blocks until the context is cancelled, then drains
// in-flight requests within the shutdown deadline; signal handling is the
// caller's job. Listen failures are wrapped with ErrStart and shutdown
// failures with ErrShutdown so callers can branch with errors.Is.
//
// HealthCheckHandler doubles as liveness probe (no checks) and readiness
// probe (dependency check functions, e.g. pg.Healthcheck and
// redis.Healthcheck).
package httpserver
