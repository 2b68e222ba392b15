package domain

import "time"

// ActivationStatus tracks an activation's lifecycle from publish to
// terminal result.
type ActivationStatus string

const (
	ActivationStatusPending    ActivationStatus = "pending"
	ActivationStatusSuccess    ActivationStatus = "success"
	ActivationStatusFailed     ActivationStatus = "failed"
	ActivationStatusDeveloperError ActivationStatus = "developer_error"
	ActivationStatusTimeout    ActivationStatus = "timeout"
	ActivationStatusAborted    ActivationStatus = "aborted"
)

// IsTerminal reports whether the status represents a finished activation.
func (s ActivationStatus) IsTerminal() bool {
	return s != ActivationStatusPending
}

// Activation is the record of a single action invocation: its request
// parameters, terminal result, timing, and logs. CauseID links component
// activations of a sequence or rule-triggered fan-out back to the
// activation that caused them.
type Activation struct {
	ActivationID string           `json:"activation_id"` // UUIDv4
	Namespace    string           `json:"namespace"`
	Name         string           `json:"name"` // action path, "pkg/name" or "name"
	Subject      string           `json:"subject"`
	Status       ActivationStatus `json:"status"`
	Response     ActivationResponse `json:"response"`
	Logs         []string         `json:"logs,omitempty"`
	Start        time.Time        `json:"start"`
	End          time.Time        `json:"end,omitempty"`
	DurationMS   int64            `json:"duration_ms"`
	CauseID      string           `json:"cause_id,omitempty"`
	InvokerID    string           `json:"invoker_id,omitempty"`
	Annotations  []KeyValue       `json:"annotations,omitempty"`
}

// ActivationResponse carries the statusCode/success/result shape mirrored
// from the wire protocol's activation result object: {success, result}.
type ActivationResponse struct {
	StatusCode int                    `json:"status_code"`
	Success    bool                   `json:"success"`
	Result     map[string]interface{} `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// IsPending reports whether the activation has not yet reached a
// terminal status.
func (a Activation) IsPending() bool {
	return a.Status == ActivationStatusPending
}

// Duration returns End.Sub(Start); callers must not rely on it before the
// activation reaches a terminal state, since End is zero until then.
func (a Activation) Duration() time.Duration {
	if a.End.IsZero() {
		return 0
	}
	return a.End.Sub(a.Start)
}
