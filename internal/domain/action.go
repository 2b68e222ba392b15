package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ExecKind distinguishes a code-bearing action from a sequence of
// component actions chained together.
type ExecKind string

const (
	ExecKindCode     ExecKind = "code"
	ExecKindSequence ExecKind = "sequence"
)

// Exec is a tagged union: exactly one of the code-bearing fields or the
// Components field is populated, selected by Kind.
type Exec struct {
	Kind ExecKind `json:"kind"`

	// Code-bearing fields (Kind == ExecKindCode).
	Runtime  string `json:"runtime,omitempty"`
	CodeHash string `json:"code_hash,omitempty"` // sha256 of the blob-stored code
	BlobKey  string `json:"blob_key,omitempty"`
	Main     string `json:"main,omitempty"` // entry point / handler symbol
	Binary   bool   `json:"binary,omitempty"`

	// Sequence fields (Kind == ExecKindSequence).
	Components []string `json:"components,omitempty"` // ordered list of FQNs
}

// Limits bounds the resources an invocation of an action may consume.
type Limits struct {
	TimeoutMS int `json:"timeout_ms"`
	MemoryMB  int `json:"memory_mb"`
	LogsMB    int `json:"logs_mb"`
}

// Action is a deployed function: either code-bearing or a sequence of
// component actions, scoped to a namespace and optionally a package.
type Action struct {
	Namespace   string     `json:"namespace"`
	Package     string     `json:"package,omitempty"`
	Name        string     `json:"name"`
	Exec        Exec       `json:"exec"`
	Limits      Limits     `json:"limits"`
	Parameters  []KeyValue `json:"parameters,omitempty"`
	Annotations []KeyValue `json:"annotations,omitempty"`
	Version     string     `json:"version"`
	Publish     bool       `json:"publish"`
	WebExport   bool       `json:"web_export"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// FQN returns this action's fully-qualified name.
func (a Action) FQN() FQN {
	return FQN{Namespace: a.Namespace, Package: a.Package, Name: a.Name}
}

// IsSequence reports whether the action dispatches to component actions
// instead of running code directly.
func (a Action) IsSequence() bool {
	return a.Exec.Kind == ExecKindSequence
}

// HashCode computes the content-addressed hash used as the blob store key
// suffix and the Exec.CodeHash field.
func HashCode(code []byte) string {
	sum := sha256.Sum256(code)
	return hex.EncodeToString(sum[:])
}

// CodeHashChanged reports whether newCode differs from the action's
// currently stored code, to decide whether a blob upload and snapshot
// invalidation are needed on update.
func (a Action) CodeHashChanged(newCode []byte) bool {
	return a.Exec.CodeHash != HashCode(newCode)
}
