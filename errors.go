// Completion: 100% - Error classes complete
package c67mach

import (
	"fmt"
	"runtime"
)

// InvariantError marks a failed internal precondition: a computed
// offset, size, or instruction immediate that violates an invariant
// the generator itself is responsible for upholding. These are
// programming-error class (spec §7/§9): they carry file/line context
// and are never meant to be recovered from by a caller, only reported.
type InvariantError struct {
	Msg  string
	File string
	Line int
}

func (e *InvariantError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d: invariant violated: %s", e.File, e.Line, e.Msg)
	}
	return "invariant violated: " + e.Msg
}

// Invariant builds an InvariantError with the caller's file/line
// attached, matching the teacher's ASSERT-with-context idiom.
func Invariant(format string, args ...any) *InvariantError {
	_, file, line, _ := runtime.Caller(1)
	return &InvariantError{Msg: fmt.Sprintf(format, args...), File: file, Line: line}
}

// InputError marks malformed IR, an unexpected helper shape, or a
// missing global: user-facing, carries the offending line or symbol.
type InputError struct {
	Context string // offending line, symbol name, or similar
	Msg     string
}

func (e *InputError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("input error (%s): %s", e.Context, e.Msg)
	}
	return "input error: " + e.Msg
}

// IOError marks a failure reading IR/image input or writing output.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("I/O error on %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
