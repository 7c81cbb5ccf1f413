// Package errors carries the failure taxonomy of the response pipeline.
//
// A pipeline failure is either fatal (permanent, never retried) or retryable
// (transient, picked up again by the retry sweep). Errors that were not
// explicitly marked fatal are retryable.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// ProcessError is the result of a failed attempt to answer one request.
type ProcessError struct {
	Fatal bool
	Err   error
}

// Error implements the error interface.
func (e *ProcessError) Error() string {
	if e.Err == nil {
		return "unknown process error"
	}
	return e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Kind returns "fatal" or "retryable".
func (e *ProcessError) Kind() string {
	if e.Fatal {
		return "fatal"
	}
	return "retryable"
}

// Fatal marks err as permanent.
func Fatal(err error) *ProcessError {
	return &ProcessError{Fatal: true, Err: err}
}

// Fatalf builds a permanent failure from a format string.
func Fatalf(format string, args ...any) *ProcessError {
	return Fatal(fmt.Errorf(format, args...))
}

// FatalWithContext marks err as permanent and prefixes it with context.
func FatalWithContext(err error, context string) *ProcessError {
	return Fatal(errors.Wrap(err, context))
}

// Retryable marks err as transient.
func Retryable(err error) *ProcessError {
	return &ProcessError{Fatal: false, Err: err}
}

// Retryablef builds a transient failure from a format string.
func Retryablef(format string, args ...any) *ProcessError {
	return Retryable(fmt.Errorf(format, args...))
}

// Classify converts any error into a ProcessError. Errors that carry no
// explicit classification are retryable.
func Classify(err error) *ProcessError {
	if err == nil {
		return nil
	}
	var pe *ProcessError
	if stderrors.As(err, &pe) {
		return pe
	}
	return Retryable(err)
}

// IsFatal reports whether err was explicitly marked fatal.
func IsFatal(err error) bool {
	var pe *ProcessError
	return stderrors.As(err, &pe) && pe.Fatal
}

// IsCanceled reports whether err stems from context cancellation or deadline.
func IsCanceled(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

// Is and As re-export the standard library helpers so callers need one import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
