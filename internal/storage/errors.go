package storage

import "errors"

var (
	// ErrInvalidJobID indicates an empty job ID.
	ErrInvalidJobID = errors.New("invalid job ID")
	// ErrJobNotFound indicates that a job cannot be found.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidJob indicates a job that fails validation.
	ErrInvalidJob = errors.New("invalid job")
	// ErrUnsupportedDriver indicates a database driver without a dialect.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)
