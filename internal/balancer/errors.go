package balancer

import "errors"

var (
	ErrCapacityExceeded   = errors.New("worker capacity exceeded")
	ErrNotFound           = errors.New("not found")
	ErrNoWorkersAvailable = errors.New("no workers available")
	ErrWorkerExists       = errors.New("worker already registered")
	ErrInvalidArgument    = errors.New("invalid argument")
)
