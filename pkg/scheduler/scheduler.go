package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// JobFunc is a single run of a periodic job. The context is cancelled when
// the runner shuts down.
type JobFunc func(ctx context.Context) error

// job holds the configuration for one registered periodic job.
type job struct {
	name     string
	interval time.Duration
	fn       JobFunc
}

// Runner executes registered jobs periodically, each on its own ticker.
// A job that returns an error or panics is logged and retried on the next
// tick; one bad run never prevents the next scheduled invocation, and one
// job never blocks another.
type Runner struct {
	jobs   map[string]*job
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	options := &runnerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	return &Runner{
		jobs:   make(map[string]*job),
		logger: options.logger,
	}
}

// AddJob registers a periodic job. Jobs must be registered before Start.
func (r *Runner) AddJob(name string, interval time.Duration, fn JobFunc) error {
	if name == "" || fn == nil {
		return ErrInvalidJob
	}
	if interval <= 0 {
		return ErrInvalidInterval
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[name]; exists {
		return ErrJobAlreadyRegistered
	}
	r.jobs[name] = &job{name: name, interval: interval, fn: fn}

	r.logger.Info("registered periodic job",
		slog.String("job_name", name),
		slog.Duration("interval", interval))
	return nil
}

// Start runs all registered jobs until the context is cancelled.
// Each job fires once immediately, then on its interval.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.RLock()
	jobs := make([]*job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.RUnlock()

	if len(jobs) == 0 {
		return ErrNoJobsRegistered
	}

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j *job) {
			defer wg.Done()
			r.runLoop(ctx, j)
		}(j)
	}

	<-ctx.Done()
	wg.Wait()
	r.logger.Info("scheduler shut down")
	return ctx.Err()
}

func (r *Runner) runLoop(ctx context.Context, j *job) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	r.runOnce(ctx, j)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx, j)
		}
	}
}

// runOnce executes a single job run with panic containment.
func (r *Runner) runOnce(ctx context.Context, j *job) {
	started := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("periodic job panicked",
				slog.String("job_name", j.name),
				slog.Any("panic", rec))
		}
	}()

	if err := j.fn(ctx); err != nil {
		r.logger.Error("periodic job failed",
			slog.String("job_name", j.name),
			slog.Duration("duration", time.Since(started)),
			slog.String("error", err.Error()))
		return
	}

	r.logger.Debug("periodic job completed",
		slog.String("job_name", j.name),
		slog.Duration("duration", time.Since(started)))
}

// RunNow triggers a single synchronous run of a registered job, outside its
// schedule. Used by operational tooling and tests.
func (r *Runner) RunNow(ctx context.Context, name string) error {
	r.mu.RLock()
	j, ok := r.jobs[name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return j.fn(ctx)
}
