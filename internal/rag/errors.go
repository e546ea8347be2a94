package rag

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below match them via errors.Is.
var (
	ErrValidation     = errors.New("validation failed")
	ErrClassification = errors.New("classification failed")
	ErrRetrieval      = errors.New("retrieval failed")
	ErrGeneration     = errors.New("generation failed")
)

// ValidationError reports a malformed request. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ClassificationError reports that the router could not obtain a valid
// label. The router recovers from it locally.
type ClassificationError struct {
	// Label is the raw provider output, if any was received.
	Label string
	Err   error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classification failed: %v", e.Err)
	}
	return fmt.Sprintf("classification failed: unrecognised label %q", e.Label)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrClassification) hold.
func (e *ClassificationError) Is(target error) bool { return target == ErrClassification }

// RetrievalError reports an embedding or index failure that outlived the
// retry policy.
type RetrievalError struct {
	// Stage is "embed" or "search".
	Stage    string
	Attempts int
	Err      error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval %s failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRetrieval) hold.
func (e *RetrievalError) Is(target error) bool { return target == ErrRetrieval }

// Retryable reports that the underlying condition is transient.
func (e *RetrievalError) Retryable() bool { return true }

// GenerationError reports a provider failure or timeout during generation.
type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrGeneration) hold.
func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }
