package pipeline

import (
	"fmt"
)

// Result is the outcome of a mutating operation: either Success or Failure.
//
//	switch r := res.(type) {
//	case pipeline.Success:
//	case pipeline.Failure:
//	}
type Result interface {
	Summary() Summary
	OK() bool
	result()
}

// Success carries the counts of a completed phase. Individual units may
// still have failed; they are listed in the summary.
type Success struct {
	summary Summary
}

// Succeeded wraps a summary as a Success.
func Succeeded(summary Summary) Success {
	return Success{summary: summary}
}

// Summary returns the phase summary.
func (s Success) Summary() Summary { return s.summary }

// OK returns true.
func (s Success) OK() bool { return true }

func (Success) result() {}

// Failure reports a phase that could not complete. The summary holds the
// counts reached before the failure.
type Failure struct {
	kind    ErrorKind
	message string
	summary Summary
	err     error
}

// Failed creates a Failure classified from err.
func Failed(err error, summary Summary) Failure {
	return Failure{
		kind:    KindOf(err),
		message: err.Error(),
		summary: summary,
		err:     err,
	}
}

// FailedWithKind creates a Failure with an explicit kind.
func FailedWithKind(kind ErrorKind, err error, summary Summary) Failure {
	return Failure{kind: kind, message: err.Error(), summary: summary, err: err}
}

// Kind returns the error kind.
func (f Failure) Kind() ErrorKind { return f.kind }

// Message returns the failure message.
func (f Failure) Message() string { return f.message }

// Summary returns the counts reached before the failure.
func (f Failure) Summary() Summary { return f.summary }

// OK returns false.
func (f Failure) OK() bool { return false }

// Error implements error.
func (f Failure) Error() string {
	return fmt.Sprintf("%s failed (%s): %s", f.summary.operation, f.kind, f.message)
}

// Unwrap returns the underlying error.
func (f Failure) Unwrap() error { return f.err }

func (Failure) result() {}

// Err returns the Failure as an error, or nil for a Success.
func Err(r Result) error {
	if f, ok := r.(Failure); ok {
		return f
	}
	return nil
}
