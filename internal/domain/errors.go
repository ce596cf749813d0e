package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIncompatibleSchema is returned when a stored campaign uses a schema
	// newer than this build supports and no migration path exists.
	ErrIncompatibleSchema = errors.New("incompatible campaign schema")

	// ErrBatchNotFound is returned when a batch ID does not reference a known batch.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrOptimizerUnavailable signals that the external optimization engine
	// could not produce a result. It is recovered locally via fallback sampling
	// and never surfaces from GenerateNextBatch.
	ErrOptimizerUnavailable = errors.New("optimizer unavailable")

	// ErrStaleState signals that persisted optimizer state was built from a
	// different campaign definition. Internal to the adapter; triggers a rebuild.
	ErrStaleState = errors.New("optimizer state is stale")
)

// ValidationError aggregates one or more spec validation problems.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "validation failed: " + e.Problems[0]
	}
	return fmt.Sprintf("validation failed (%d problems): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Addf appends a formatted problem to the error.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// OrNil returns the error itself if any problem was recorded, nil otherwise.
func (e *ValidationError) OrNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError wraps a persistence failure that survived its local retry.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
