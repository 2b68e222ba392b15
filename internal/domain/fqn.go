// Package domain defines the OpenWhisk-compatible entity model: namespaces,
// packages, actions, triggers, rules, and activations.
package domain

import (
	"fmt"
	"strings"
)

// FQN is a fully-qualified entity path: /namespace/[package/]name.
type FQN struct {
	Namespace string
	Package   string // empty when the entity is not inside a package
	Name      string
}

func (f FQN) String() string {
	if f.Package == "" {
		return fmt.Sprintf("/%s/%s", f.Namespace, f.Name)
	}
	return fmt.Sprintf("/%s/%s/%s", f.Namespace, f.Package, f.Name)
}

// Path returns the package-relative path used in URLs: "name" or "pkg/name".
func (f FQN) Path() string {
	if f.Package == "" {
		return f.Name
	}
	return f.Package + "/" + f.Name
}

// ParseFQN parses "/namespace/name" or "/namespace/package/name" into an FQN.
// The package-relative path forms "name" and "package/name" are parsed by
// ParseActionPath instead; a single segment is rejected here.
func ParseFQN(raw string) (FQN, error) {
	trimmed := strings.Trim(raw, "/")
	parts := strings.Split(trimmed, "/")

	switch len(parts) {
	case 2:
		return FQN{Namespace: parts[0], Name: parts[1]}, nil
	case 3:
		return FQN{Namespace: parts[0], Package: parts[1], Name: parts[2]}, nil
	default:
		return FQN{}, fmt.Errorf("invalid fully-qualified name: %q", raw)
	}
}

// BuildFQN constructs the canonical string form of an FQN.
func BuildFQN(namespace, pkg, name string) string {
	return FQN{Namespace: namespace, Package: pkg, Name: name}.String()
}

// ParseActionPath splits a package-relative action path ("name" or
// "pkg/name") into its package (possibly empty) and name components.
func ParseActionPath(path string) (pkg, name string, err error) {
	trimmed := strings.Trim(path, "/")
	parts := strings.SplitN(trimmed, "/", 2)
	switch len(parts) {
	case 1:
		if parts[0] == "" {
			return "", "", fmt.Errorf("action path cannot be empty")
		}
		return "", parts[0], nil
	case 2:
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("invalid action path: %q", path)
	}
}
