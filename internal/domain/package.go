package domain

import "time"

// MaxBindingDepth bounds package-binding resolution chains. A binding whose
// reference chain exceeds this depth is treated as a cycle.
const MaxBindingDepth = 8

// KeyValue is a single parameter or annotation entry, matching the
// OpenWhisk wire shape of {"key": ..., "value": ...} pairs.
type KeyValue struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// Binding references another package whose parameters are inherited.
type Binding struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// Package groups actions and triggers and optionally binds another
// package's parameters, chaining lazily at resolve time.
type Package struct {
	Namespace   string     `json:"namespace"`
	Name        string     `json:"name"`
	Publish     bool       `json:"publish"`
	Binding     *Binding   `json:"binding,omitempty"`
	Parameters  []KeyValue `json:"parameters,omitempty"`
	Annotations []KeyValue `json:"annotations,omitempty"`
	Version     string     `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// FQN returns this package's fully-qualified name.
func (p Package) FQN() FQN {
	return FQN{Namespace: p.Namespace, Name: p.Name}
}

// IsBound reports whether this package binds parameters from another package.
func (p Package) IsBound() bool {
	return p.Binding != nil
}
