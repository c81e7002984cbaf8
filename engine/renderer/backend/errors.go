package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrNotDeferred is returned by Finish on the immediate context.
	ErrNotDeferred = errors.New("backend: context is not deferred")

	// ErrUnknownHandle is returned when a command or call references a resource that does not exist.
	ErrUnknownHandle = errors.New("backend: unknown resource handle")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("backend: device closed")
)

// SubmissionError reports that the backend rejected a command batch or command list.
// Diagnostic carries the backend's own description of the failure.
type SubmissionError struct {
	Op         string
	Diagnostic string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend: %s failed: %s: %v", e.Op, e.Diagnostic, e.Err)
	}
	return fmt.Sprintf("backend: %s failed: %s", e.Op, e.Diagnostic)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Diagnostic extracts the backend diagnostic from an error chain, or "" when err is not a submission failure.
func Diagnostic(err error) string {
	var se *SubmissionError
	if errors.As(err, &se) {
		return se.Diagnostic
	}
	return ""
}
