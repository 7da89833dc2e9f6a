package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"local-api-gateway/internal/invoker"
	"local-api-gateway/internal/router"
)

// serverlessFile mirrors the subset of a serverless configuration the
// gateway reads: the provider's default runtime plus each function's
// handler, runtime override and HTTP API events.
type serverlessFile struct {
	Service   string        `yaml:"service"`
	Provider  providerBlock `yaml:"provider"`
	Functions functionList  `yaml:"functions"`
}

type providerBlock struct {
	Name    string `yaml:"name"`
	Runtime string `yaml:"runtime"`
}

type functionDecl struct {
	Name    string      `yaml:"-"`
	Handler string      `yaml:"handler" validate:"required"`
	Runtime string      `yaml:"runtime"`
	Events  []eventDecl `yaml:"events"`
}

// eventDecl keeps only httpApi events; every other event type decodes to a
// nil HTTPAPI and is ignored.
type eventDecl struct {
	HTTPAPI *httpAPIEvent `yaml:"httpApi"`
}

// httpAPIEvent accepts both the block form {method, path} and the
// "<METHOD> <path>" shorthand string.
type httpAPIEvent struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
}

func (e *httpAPIEvent) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parts := strings.Fields(value.Value)
		if len(parts) != 2 {
			return fmt.Errorf("line %d: invalid httpApi event '%s', want '<METHOD> <path>'", value.Line, value.Value)
		}
		e.Method = parts[0]
		e.Path = parts[1]
		return nil
	}

	type plain httpAPIEvent
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*e = httpAPIEvent(p)
	return nil
}

// functionList preserves declaration order and accepts both the plain
// mapping form and the list-of-single-key-mappings form produced by the
// serverless packaging step.
type functionList []functionDecl

func (l *functionList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		return l.appendMapping(value)
	case yaml.SequenceNode:
		for _, item := range value.Content {
			if item.Kind != yaml.MappingNode {
				return fmt.Errorf("line %d: function list entries must be mappings", item.Line)
			}
			if err := l.appendMapping(item); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("line %d: functions must be a mapping or a list of mappings", value.Line)
	}
}

func (l *functionList) appendMapping(node *yaml.Node) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		var fn functionDecl
		if err := node.Content[i+1].Decode(&fn); err != nil {
			return err
		}
		fn.Name = node.Content[i].Value
		*l = append(*l, fn)
	}
	return nil
}

// LoadEndpoints parses the serverless configuration and returns one route
// per configured HTTP API event, in declaration order. Functions whose
// runtime is outside the two supported families are skipped with a warning;
// everything else that is off is fatal.
func LoadEndpoints(configPath, functionsDir string) ([]router.Route, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading serverless configuration '%s': %w", configPath, err)
	}

	var cfg serverlessFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing serverless configuration '%s': %w", configPath, err)
	}

	baseDir, err := filepath.Abs(functionsDir)
	if err != nil {
		return nil, fmt.Errorf("resolving functions directory '%s': %w", functionsDir, err)
	}

	validate := validator.New()

	var routes []router.Route
	seen := make(map[string]bool)

	for _, fn := range cfg.Functions {
		runtime := cfg.Provider.Runtime
		if fn.Runtime != "" {
			runtime = fn.Runtime
		}
		if runtime == "" {
			return nil, fmt.Errorf("function '%s' has no runtime, set one on the function or the provider", fn.Name)
		}

		family, ok := runtimeFamily(runtime)
		if !ok {
			logrus.WithFields(logrus.Fields{
				"function": fn.Name,
				"runtime":  runtime,
			}).Warn("Unsupported runtime, skipping function")
			continue
		}

		if err := validate.Struct(fn); err != nil {
			return nil, fmt.Errorf("function '%s' has no handler configured", fn.Name)
		}
		stem, entry, ok := splitHandler(fn.Handler)
		if !ok {
			return nil, fmt.Errorf("function '%s' has invalid handler '%s', want 'file.entrypoint'", fn.Name, fn.Handler)
		}

		ext, err := family.Ext()
		if err != nil {
			return nil, err
		}
		file := filepath.Join(baseDir, fn.Name, stem+ext)
		if info, err := os.Stat(file); err != nil || !info.Mode().IsRegular() {
			return nil, fmt.Errorf("function '%s' handler file not found: '%s'", fn.Name, file)
		}

		for _, ev := range fn.Events {
			if ev.HTTPAPI == nil {
				continue
			}
			method := strings.ToUpper(strings.TrimSpace(ev.HTTPAPI.Method))
			path := strings.TrimSpace(ev.HTTPAPI.Path)
			if method == "" || path == "" {
				return nil, fmt.Errorf("function '%s' has an httpApi event missing method or path", fn.Name)
			}
			if method == "*" || method == "ANY" {
				logrus.WithFields(logrus.Fields{
					"function": fn.Name,
					"path":     path,
				}).Warn("Wildcard methods are not supported, skipping event")
				continue
			}

			key := router.RouteKey(method, path)
			if seen[key] {
				return nil, router.NewRouteError("load", key, router.ErrDuplicateRoute)
			}
			seen[key] = true

			routes = append(routes, router.Route{
				Key:    key,
				Method: method,
				Path:   path,
				Function: invoker.Function{
					Name:    fn.Name,
					Runtime: family,
					File:    file,
					Handler: entry,
				},
			})
		}
	}

	if len(routes) == 0 {
		return nil, fmt.Errorf("no HTTP API endpoints found in '%s', configure at least one function with an httpApi event", configPath)
	}

	return routes, nil
}

// runtimeFamily maps a configured runtime identifier (e.g. "python3.7",
// "nodejs12.x") onto one of the supported families.
func runtimeFamily(runtime string) (invoker.Runtime, bool) {
	switch {
	case strings.HasPrefix(runtime, "python"):
		return invoker.RuntimePython, true
	case strings.HasPrefix(runtime, "nodejs"):
		return invoker.RuntimeNode, true
	default:
		return "", false
	}
}

// splitHandler splits a "file.entrypoint" handler reference.
func splitHandler(handler string) (stem, entry string, ok bool) {
	parts := strings.Split(handler, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
