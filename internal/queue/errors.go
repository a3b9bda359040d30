package queue

import "errors"

var (
	// ErrQueueBackend means the underlying queue could not accept or serve a
	// request. AddJob wraps every enqueue failure in it except a duplicate id.
	ErrQueueBackend      = errors.New("queue backend unavailable")
	ErrJobNotFound       = errors.New("job not found")
	ErrDuplicateJob      = errors.New("duplicate job id")
	ErrInvalidTransition = errors.New("invalid job state transition")
)
