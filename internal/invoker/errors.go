package invoker

import (
	"errors"
	"fmt"
)

// Invocation error kinds. Configuration-shaped failures (missing handler,
// missing layer, unknown runtime) abort before a sandbox exists; the output
// kinds classify what came back from one.
var (
	ErrUnsupportedRuntime     = errors.New("unsupported function runtime")
	ErrFunctionNotFound       = errors.New("function handler file not found")
	ErrLayerNotFound          = errors.New("layer directory not found")
	ErrMalformedRuntimeOutput = errors.New("malformed runtime output")
	ErrSandboxExecution       = errors.New("sandbox execution failed")
)

// InvocationError wraps a failure with the operation and function involved.
type InvocationError struct {
	Op       string // Operation that failed (e.g. "precheck", "run", "parse-output")
	Function string // Function name involved, if known
	Err      error  // Underlying error
}

func (e *InvocationError) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("invoker %s failed for function '%s': %v", e.Op, e.Function, e.Err)
	}
	return fmt.Sprintf("invoker %s failed: %v", e.Op, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// NewInvocationError creates a new InvocationError.
func NewInvocationError(op, function string, err error) *InvocationError {
	return &InvocationError{Op: op, Function: function, Err: err}
}

// IsUnsupportedRuntime reports whether err was caused by an unknown runtime family.
func IsUnsupportedRuntime(err error) bool {
	return errors.Is(err, ErrUnsupportedRuntime)
}

// IsFunctionNotFound reports whether err was caused by a missing handler file.
func IsFunctionNotFound(err error) bool {
	return errors.Is(err, ErrFunctionNotFound)
}

// IsLayerNotFound reports whether err was caused by a missing layer directory.
func IsLayerNotFound(err error) bool {
	return errors.Is(err, ErrLayerNotFound)
}

// IsMalformedOutput reports whether err was caused by unparseable runtime output.
func IsMalformedOutput(err error) bool {
	return errors.Is(err, ErrMalformedRuntimeOutput)
}

// IsSandboxFailure reports whether err was caused by the sandbox itself
// failing rather than the function returning an error value.
func IsSandboxFailure(err error) bool {
	return errors.Is(err, ErrSandboxExecution)
}
