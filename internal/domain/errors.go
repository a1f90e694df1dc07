package domain

import (
	"errors"
	"strings"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrSubmissionNotFound is returned when no record has the requested id.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrConnection indicates the store could not be reached in time.
	ErrConnection = errors.New("store unreachable")
	// ErrPersistence wraps any other failed store operation.
	ErrPersistence = errors.New("persistence failure")
	// ErrUnknownQuestion is returned by the collector for ids outside the catalog.
	ErrUnknownQuestion = errors.New("unknown question")
)

// ValidationError lists the required fields that were missing.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
