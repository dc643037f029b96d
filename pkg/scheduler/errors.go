package scheduler

import "errors"

var (
	ErrInvalidJob           = errors.New("scheduler: job name and function are required")
	ErrInvalidInterval      = errors.New("scheduler: job interval must be positive")
	ErrJobAlreadyRegistered = errors.New("scheduler: job already registered")
	ErrNoJobsRegistered     = errors.New("scheduler: no jobs registered")
	ErrJobNotFound          = errors.New("scheduler: job not found")
)
