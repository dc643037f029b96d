package httpserver

import (
	"log/slog"
	"time"
)

// Option configures a Server at construction time. Options with invalid
// arguments panic: misconfiguration is a programming error, not a runtime
// condition.
type Option func(*Server)

// WithAddr overrides the listen address.
func WithAddr(addr string) Option {
	if addr == "" {
		panic("httpserver: addr cannot be empty")
	}
	return func(s *Server) { s.addr = addr }
}

// WithReadTimeout bounds reading a full request, headers included.
func WithReadTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("httpserver: read timeout must be positive")
	}
	return func(s *Server) { s.readTimeout = d }
}

// WithWriteTimeout bounds writing a response.
func WithWriteTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("httpserver: write timeout must be positive")
	}
	return func(s *Server) { s.writeTimeout = d }
}

// WithIdleTimeout bounds how long a keep-alive connection may sit idle.
func WithIdleTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("httpserver: idle timeout must be positive")
	}
	return func(s *Server) { s.idleTimeout = d }
}

// WithShutdownTimeout bounds draining in-flight requests on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("httpserver: shutdown timeout must be positive")
	}
	return func(s *Server) { s.shutdownTimeout = d }
}

// WithLogger sets the logger handed to lifecycle hooks. Nil keeps the
// discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStartHook registers a callback that runs as the listener starts.
func WithStartHook(h func(*slog.Logger)) Option {
	if h == nil {
		panic("httpserver: nil start hook")
	}
	return func(s *Server) { s.startHooks = append(s.startHooks, h) }
}

// WithStopHook registers a callback that runs after shutdown completes.
func WithStopHook(h func(*slog.Logger)) Option {
	if h == nil {
		panic("httpserver: nil stop hook")
	}
	return func(s *Server) { s.stopHooks = append(s.stopHooks, h) }
}
