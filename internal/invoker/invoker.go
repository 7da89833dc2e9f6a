package invoker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Function describes one function the gateway can invoke: its name, runtime
// family, the absolute path to its handler source file and the entry-point
// name inside that file. Built once at startup and never mutated.
type Function struct {
	Name    string
	Runtime Runtime
	File    string
	Handler string
}

// ExecutionSpec holds the parameters for one sandbox run.
type ExecutionSpec struct {
	Image    string            // sandbox image, selected by runtime family
	CodeDir  string            // host directory mounted read-only at TaskDir
	LayerDir string            // optional host directory mounted read-only at LayerDir
	Network  string            // optional network the sandbox attaches to
	Env      map[string]string // environment variables injected into the sandbox
	Handler  string            // "<file-stem>.<entrypoint>"
	Payload  string            // serialized invocation event, empty for none
}

// Output is the raw outcome of one sandbox run.
type Output struct {
	Combined []byte // interleaved stdout and stderr, in stream order
	ExitCode int
}

// Executor runs one sandbox to completion. Implementations block until the
// sandbox exits; there is no timeout at this boundary, so a hung function
// hangs its calling request.
type Executor interface {
	Run(ctx context.Context, spec ExecutionSpec) (*Output, error)
}

// Options carries the execution settings shared by every invocation,
// supplied once at startup.
type Options struct {
	Environment map[string]string
	LayerDir    string
	Network     string
}

// Invoker turns a Function plus a serialized event into an InvocationResult
// by running the function inside a fresh sandbox.
type Invoker struct {
	exec Executor
	opts Options
}

// New creates an Invoker backed by the given executor. The layer directory,
// when set, is resolved to an absolute path here and verified per invocation.
func New(exec Executor, opts Options) (*Invoker, error) {
	if exec == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if opts.LayerDir != "" {
		abs, err := filepath.Abs(opts.LayerDir)
		if err != nil {
			return nil, fmt.Errorf("resolving layer directory: %w", err)
		}
		opts.LayerDir = abs
	}
	return &Invoker{exec: exec, opts: opts}, nil
}

// Result describes one completed invocation: the full captured output, the
// terminal JSON value from the last output line, the exit status, and the
// extracted error fields when the terminal value is a runtime error object.
type Result struct {
	Stdout       string
	ReturnValue  json.RawMessage
	ExitStatus   int
	ErrorType    string
	ErrorMessage string
	StackTrace   json.RawMessage
}

// Invoke runs fn in a fresh sandbox with payload as its sole argument and
// parses the run's outcome. The runtime family comes from the handler file's
// extension alone; preconditions are re-checked on every call so functions
// edited or removed between requests surface immediately.
func (i *Invoker) Invoke(ctx context.Context, fn Function, payload []byte) (*Result, error) {
	rt, err := RuntimeForHandler(fn.File)
	if err != nil {
		return nil, NewInvocationError("precheck", fn.Name, err)
	}
	image, err := rt.Image()
	if err != nil {
		return nil, NewInvocationError("precheck", fn.Name, err)
	}

	info, err := os.Stat(fn.File)
	if err != nil || !info.Mode().IsRegular() {
		return nil, NewInvocationError("precheck", fn.Name,
			fmt.Errorf("%w: '%s' not found or is not a file", ErrFunctionNotFound, fn.File))
	}

	if i.opts.LayerDir != "" {
		layerInfo, err := os.Stat(i.opts.LayerDir)
		if err != nil || !layerInfo.IsDir() {
			return nil, NewInvocationError("precheck", fn.Name,
				fmt.Errorf("%w: '%s' not found or is not a directory", ErrLayerNotFound, i.opts.LayerDir))
		}
	}

	stem := strings.TrimSuffix(filepath.Base(fn.File), filepath.Ext(fn.File))
	spec := ExecutionSpec{
		Image:    image,
		CodeDir:  filepath.Dir(fn.File),
		LayerDir: i.opts.LayerDir,
		Network:  i.opts.Network,
		Env:      i.opts.Environment,
		Handler:  stem + "." + fn.Handler,
		Payload:  string(payload),
	}

	out, err := i.exec.Run(ctx, spec)
	if err != nil {
		return nil, NewInvocationError("run", fn.Name, fmt.Errorf("%w: %v", ErrSandboxExecution, err))
	}

	return parseOutput(fn.Name, out)
}

// parseOutput classifies a completed run. The last line of combined output
// is the terminal JSON value; a run whose last line does not parse is a
// malformed-output failure on a clean exit and a sandbox failure otherwise.
func parseOutput(function string, out *Output) (*Result, error) {
	stdout := string(out.Combined)

	line, ok := lastLine(stdout)
	var terminal json.RawMessage
	if ok {
		if err := json.Unmarshal([]byte(line), &terminal); err != nil {
			ok = false
		}
	}
	if !ok {
		if out.ExitCode != 0 {
			return nil, NewInvocationError("run", function,
				fmt.Errorf("%w: exit status %d with no terminal value, output: %s",
					ErrSandboxExecution, out.ExitCode, strings.TrimSpace(stdout)))
		}
		return nil, NewInvocationError("parse-output", function,
			fmt.Errorf("%w: last output line is not valid JSON: %q", ErrMalformedRuntimeOutput, line))
	}

	res := &Result{
		Stdout:      stdout,
		ReturnValue: terminal,
		ExitStatus:  out.ExitCode,
	}

	var runtimeError struct {
		ErrorType    string          `json:"errorType"`
		ErrorMessage string          `json:"errorMessage"`
		StackTrace   json.RawMessage `json:"stackTrace"`
	}
	if err := json.Unmarshal(terminal, &runtimeError); err == nil {
		res.ErrorType = runtimeError.ErrorType
		res.ErrorMessage = runtimeError.ErrorMessage
		res.StackTrace = runtimeError.StackTrace
	}

	return res, nil
}

// lastLine returns the final line of output. A single trailing newline does
// not count as a line of its own.
func lastLine(stdout string) (string, bool) {
	trimmed := strings.TrimSuffix(stdout, "\n")
	if trimmed == "" {
		return "", false
	}
	lines := strings.Split(trimmed, "\n")
	return strings.TrimSuffix(lines[len(lines)-1], "\r"), true
}

// envSlice renders an environment map as KEY=VALUE pairs in sorted order so
// sandbox creation is deterministic.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(env))
	for _, k := range keys {
		pairs = append(pairs, k+"="+env[k])
	}
	return pairs
}
