// Package broker implements the Message Broker Client: the append-only,
// partitioned-log abstraction the controller and invokers use to exchange
// invocation requests, activation results, and health heartbeats.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Stream names and consumer groups, fixed by the wire contract (spec §6).
const (
	InvocationsStream        = "invocations"
	ActivationResultsStream  = "activations_results"
	HeartbeatsStream         = "heartbeats"

	InvokersGroup     = "invokers"
	ControllersGroup  = "controllers"
	MonitorsGroup     = "monitors"
)

// ErrNoMessage is returned by non-blocking reads when nothing is available,
// and by ReadBlocking when its timeout elapses without a matching result.
var ErrNoMessage = errors.New("broker: no message available")

// ActionDescriptor carries the subset of an action's deployed definition
// an invoker needs to execute it, inlined into every invocation message
// so the invoker never has to call back into the entity store (spec
// §4.3: "an `action` descriptor subfield that includes exec kind/image/
// main/binary, code reference, limits, and default parameters").
type ActionDescriptor struct {
	Runtime    string          `json:"runtime,omitempty"`
	Main       string          `json:"main,omitempty"`
	Binary     bool            `json:"binary,omitempty"`
	BlobKey    string          `json:"blob_key,omitempty"`
	CodeHash   string          `json:"code_hash,omitempty"`
	TimeoutMS  int             `json:"timeout_ms"`
	MemoryMB   int             `json:"memory_mb"`
	LogsMB     int             `json:"logs_mb"`
	Parameters json.RawMessage `json:"parameters,omitempty"` // default parameters, JSON object
}

// InvocationMessage is published to InvocationsStream to hand an
// invocation off to an invoker.
type InvocationMessage struct {
	ActivationID   string           `json:"activation_id"`
	Action         string           `json:"action"` // FQN string
	Params         json.RawMessage  `json:"params"`
	Blocking       bool             `json:"blocking"`
	Namespace      string           `json:"namespace"`
	DeadlineUnixMS int64            `json:"deadline_unix_ms"`
	Descriptor     ActionDescriptor `json:"descriptor"`
	TraceParent    string           `json:"trace_parent,omitempty"` // W3C traceparent, for the invoker to continue the trace
}

// ActivationResultMessage is published to ActivationResultsStream once an
// invoker finishes running an action.
type ActivationResultMessage struct {
	ActivationID string          `json:"activation_id"`
	StatusCode   int             `json:"status_code"`
	Response     json.RawMessage `json:"response"`
	Logs         []string        `json:"logs"`
	DurationMS   int64           `json:"duration_ms"`
	InvokerID    string          `json:"invoker_id"`
	TraceParent  string          `json:"trace_parent,omitempty"` // carried over from the InvocationMessage that requested the run
}

// HeartbeatMessage is published to HeartbeatsStream by each invoker to
// report health and capacity: its memory capacity in MB, active container
// count, status, and the runtimes it supports and has warm. It carries no
// separate available-memory, busy or prewarm counts.
type HeartbeatMessage struct {
	InvokerID         string   `json:"invoker_id"`
	TimestampUnixMS   int64    `json:"timestamp_unix_ms"`
	CapacityMB        int      `json:"capacity_mb"`
	ActiveContainers  int      `json:"active_containers"`
	Status            string   `json:"status"`
	SupportedRuntimes []string `json:"supported_runtimes"`
	WarmRuntimes      []string `json:"warm_runtimes"` // subset of SupportedRuntimes with a warm container ready
}

// Broker is the Message Broker Client contract.
type Broker interface {
	PublishInvocation(ctx context.Context, msg InvocationMessage) (messageID string, err error)
	PublishActivationResult(ctx context.Context, msg ActivationResultMessage) (messageID string, err error)
	PublishHeartbeat(ctx context.Context, msg HeartbeatMessage) (messageID string, err error)

	// ReadBlocking waits (up to timeout) for the activation result matching
	// activationID to appear, used by blocking invocations and the
	// Activation Manager's Await.
	ReadBlocking(ctx context.Context, activationID string, timeout time.Duration) (*ActivationResultMessage, error)

	// ReadRecent scans the most recently published results for a
	// match without blocking.
	ReadRecent(ctx context.Context, activationID string, count int) (*ActivationResultMessage, error)

	// RecentHeartbeats returns the most recent heartbeat per invoker.
	RecentHeartbeats(ctx context.Context, count int) ([]HeartbeatMessage, error)

	// ConsumeInvocations reads pending invocation messages for a consumer
	// in a group, used by invoker-side consumers (out of scope to
	// implement here, but the contract is symmetric).
	ConsumeInvocations(ctx context.Context, consumer string, count int, block time.Duration) ([]InvocationMessage, error)

	EnsureConsumerGroup(ctx context.Context, stream, group string) error

	Ping(ctx context.Context) error
	Close() error
}
