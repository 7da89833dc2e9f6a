package invoker

import (
	"fmt"
	"path/filepath"
)

// Runtime identifies one of the two supported function runtime families.
type Runtime string

const (
	RuntimePython Runtime = "python"
	RuntimeNode   Runtime = "node"
)

// Sandbox images for each runtime family.
const (
	PythonImage = "lambci/lambda:python3.7"
	NodeImage   = "lambci/lambda:nodejs12.x"
)

// Fixed in-sandbox mount points.
const (
	TaskDir  = "/var/task"
	LayerDir = "/opt"
)

// RuntimeForHandler derives the runtime family from the handler file's
// extension. Any extension outside the two supported families fails before
// a sandbox is ever created.
func RuntimeForHandler(path string) (Runtime, error) {
	switch filepath.Ext(path) {
	case ".py":
		return RuntimePython, nil
	case ".js":
		return RuntimeNode, nil
	default:
		return "", fmt.Errorf("%w: no runtime for extension %q", ErrUnsupportedRuntime, filepath.Ext(path))
	}
}

// Ext returns the handler source extension for the runtime family.
func (r Runtime) Ext() (string, error) {
	switch r {
	case RuntimePython:
		return ".py", nil
	case RuntimeNode:
		return ".js", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedRuntime, string(r))
	}
}

// Image returns the sandbox image for the runtime family.
func (r Runtime) Image() (string, error) {
	switch r {
	case RuntimePython:
		return PythonImage, nil
	case RuntimeNode:
		return NodeImage, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedRuntime, string(r))
	}
}
