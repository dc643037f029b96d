package scheduler

import "log/slog"

type runnerOptions struct {
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*runnerOptions)

// WithLogger sets the logger used for job lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *runnerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
