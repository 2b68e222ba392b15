// Package validation implements the OpenWhisk entity naming and resource
// limit rules that gate every store write.
package validation

import (
	"encoding/json"
	"regexp"

	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/werr"
)

var entityNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_@.\-]+$`)

const (
	MaxNameLength     = 256
	MaxActionCodeSize = 48 * 1024 * 1024 // 48 MiB
	MaxParameterSize  = 1 * 1024 * 1024  // 1 MiB

	MinTimeoutMS = 100
	MaxTimeoutMS = 600000
	MinMemoryMB  = 128
	MaxMemoryMB  = 2048
	MinLogsMB    = 0
	MaxLogsMB    = 10
)

// SupportedExecKinds is the concrete runtime version matrix; spec.md leaves
// "supported runtimes" abstract, so this adopts the original system's
// allowlist verbatim.
var SupportedExecKinds = map[string]bool{
	"nodejs:18": true, "nodejs:20": true,
	"python:3.9": true, "python:3.10": true, "python:3.11": true,
	"python:3.12": true, "python:3.13": true,
	"go:1.21": true, "go:1.22": true, "go:1.23": true,
	"java:11": true, "java:17": true, "java:21": true,
	"php:8.1": true, "php:8.2": true,
	"ruby:3.2": true, "ruby:3.3": true,
	"swift:5.9": true,
	"rust:1.75": true,
	"blackbox":  true,
}

// EntityName validates an OpenWhisk entity name (namespace, package,
// action, trigger, or rule name).
func EntityName(name, field string) error {
	if name == "" {
		return werr.Validationf("%s cannot be empty", field)
	}
	if len(name) > MaxNameLength {
		return werr.Validationf("%s exceeds maximum length of %d characters", field, MaxNameLength)
	}
	if !entityNamePattern.MatchString(name) {
		return werr.Validationf("%s must contain only letters, numbers, and characters: _ @ . -", field)
	}
	return nil
}

// NamespaceName validates a namespace name using the same rules as any
// other entity name.
func NamespaceName(name string) error {
	return EntityName(name, "namespace")
}

// ActionCode validates the size of a code-bearing action's source blob.
func ActionCode(code []byte) error {
	if len(code) == 0 {
		return werr.Validationf("action code cannot be empty")
	}
	if len(code) > MaxActionCodeSize {
		return werr.Validationf("action code size exceeds maximum size of %d bytes", MaxActionCodeSize)
	}
	return nil
}

// ExecKind validates an action's runtime/kind string against the
// supported version matrix.
func ExecKind(kind string) error {
	if kind == "" {
		return werr.Validationf("exec kind cannot be empty")
	}
	if !SupportedExecKinds[kind] {
		return werr.Validationf("unsupported exec kind: %s", kind)
	}
	return nil
}

// Parameters validates the serialized size of a parameter list.
func Parameters(params []domain.KeyValue) error {
	return sizeLimit(params, "parameters")
}

// Annotations validates the serialized size of an annotation list.
func Annotations(annotations []domain.KeyValue) error {
	return sizeLimit(annotations, "annotations")
}

func sizeLimit(kvs []domain.KeyValue, field string) error {
	if len(kvs) == 0 {
		return nil
	}
	encoded, err := json.Marshal(kvs)
	if err != nil {
		return werr.Validationf("%s could not be serialized: %v", field, err)
	}
	if len(encoded) > MaxParameterSize {
		return werr.Validationf("%s size exceeds maximum size of %d bytes", field, MaxParameterSize)
	}
	return nil
}

// Limits validates an action's resource limits fall within the allowed
// timeout/memory/logs ranges.
func Limits(limits domain.Limits) error {
	if limits.TimeoutMS < MinTimeoutMS || limits.TimeoutMS > MaxTimeoutMS {
		return werr.Validationf("timeout must be between %dms and %dms", MinTimeoutMS, MaxTimeoutMS)
	}
	if limits.MemoryMB < MinMemoryMB || limits.MemoryMB > MaxMemoryMB {
		return werr.Validationf("memory must be between %dMB and %dMB", MinMemoryMB, MaxMemoryMB)
	}
	if limits.LogsMB < MinLogsMB || limits.LogsMB > MaxLogsMB {
		return werr.Validationf("logs must be between %dMB and %dMB", MinLogsMB, MaxLogsMB)
	}
	return nil
}

// ClampTimeout clamps a requested timeout into the valid range, used by
// the orchestrator when a caller-supplied timeout falls outside bounds.
func ClampTimeout(ms int) int {
	if ms < MinTimeoutMS {
		return MinTimeoutMS
	}
	if ms > MaxTimeoutMS {
		return MaxTimeoutMS
	}
	return ms
}

// Action validates an action's name, exec descriptor, limits, parameters,
// and annotations in one pass.
func Action(a domain.Action) error {
	if err := EntityName(a.Name, "name"); err != nil {
		return err
	}
	if a.Package != "" {
		if err := EntityName(a.Package, "package"); err != nil {
			return err
		}
	}
	switch a.Exec.Kind {
	case domain.ExecKindCode:
		if err := ExecKind(a.Exec.Runtime); err != nil {
			return err
		}
	case domain.ExecKindSequence:
		if len(a.Exec.Components) == 0 {
			return werr.Validationf("sequence action must have at least one component")
		}
	default:
		return werr.Validationf("exec.kind must be %q or %q", domain.ExecKindCode, domain.ExecKindSequence)
	}
	if err := Limits(a.Limits); err != nil {
		return err
	}
	if err := Parameters(a.Parameters); err != nil {
		return err
	}
	return Annotations(a.Annotations)
}
