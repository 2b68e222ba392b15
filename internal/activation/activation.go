// Package activation implements the Activation Manager (spec §4.5): it
// opens pending activation records before an invocation is published
// (the write-before-publish invariant), finalizes them exactly once when
// a result arrives, and lets blocking callers await completion.
package activation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/whisk/internal/broker"
	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/logging"
	"github.com/oriys/whisk/internal/observability"
	"github.com/oriys/whisk/internal/store"
	"github.com/oriys/whisk/internal/werr"
)

// OpenSpec carries the fields needed to create a pending activation
// record ahead of publish.
type OpenSpec struct {
	Namespace string
	Name      string // action path, "pkg/name" or "name"
	Subject   string
	Kind      string // exec kind, or "sequence"
	Limits    domain.Limits
	CauseID   string
}

// FinalizeFields carries the terminal outcome of an activation.
type FinalizeFields struct {
	StatusCode  int
	Success     bool
	Result      map[string]interface{}
	Error       string
	Logs        []string
	DurationMS  int64
	InvokerID   string
	Annotations []domain.KeyValue
}

// Manager is the Activation Manager.
type Manager struct {
	store  store.MetadataStore
	broker broker.Broker
}

// NewManager builds a Manager over s (the Entity Store) and b (the
// result stream it awaits on).
func NewManager(s store.MetadataStore, b broker.Broker) *Manager {
	return &Manager{store: s, broker: b}
}

// Open generates a UUIDv4 activation id and writes a pending record
// (End is zero, Status is pending). Callers must observe this write
// complete before publishing the corresponding invocation message.
func (m *Manager) Open(ctx context.Context, spec OpenSpec) (string, error) {
	id := uuid.New().String()
	rec := &domain.Activation{
		ActivationID: id,
		Namespace:    spec.Namespace,
		Name:         spec.Name,
		Subject:      spec.Subject,
		Status:       domain.ActivationStatusPending,
		Start:        time.Now(),
		CauseID:      spec.CauseID,
		Annotations: []domain.KeyValue{
			{Key: "path", Value: spec.Name},
			{Key: "kind", Value: spec.Kind},
			{Key: "limits", Value: limitsToMap(spec.Limits)},
		},
	}
	if err := m.store.SaveActivation(ctx, rec); err != nil {
		return "", werr.Wrap(werr.KindInternal, "open activation", err)
	}
	return id, nil
}

func limitsToMap(l domain.Limits) map[string]interface{} {
	return map[string]interface{}{
		"timeout_ms": l.TimeoutMS,
		"memory_mb":  l.MemoryMB,
		"logs_mb":    l.LogsMB,
	}
}

// Finalize sets an activation's terminal fields and status. Idempotent:
// calling it again on an already-terminal record is a no-op, so a
// duplicate or late-arriving result never clobbers the first outcome.
func (m *Manager) Finalize(ctx context.Context, namespace, activationID string, fields FinalizeFields) error {
	rec, err := m.store.GetActivation(ctx, namespace, activationID)
	if err != nil {
		return err
	}
	if rec.Status.IsTerminal() {
		return nil
	}

	end := time.Now()
	rec.End = end
	if fields.DurationMS > 0 {
		rec.DurationMS = fields.DurationMS
	} else {
		rec.DurationMS = end.Sub(rec.Start).Milliseconds()
	}
	rec.Response = domain.ActivationResponse{
		StatusCode: fields.StatusCode,
		Success:    fields.Success,
		Result:     fields.Result,
		Error:      fields.Error,
	}
	rec.Logs = fields.Logs
	rec.InvokerID = fields.InvokerID
	rec.Status = terminalStatus(fields)
	rec.Annotations = append(rec.Annotations, fields.Annotations...)

	if err := m.store.SaveActivation(ctx, rec); err != nil {
		return werr.Wrap(werr.KindInternal, "finalize activation", err)
	}
	return nil
}

func terminalStatus(fields FinalizeFields) domain.ActivationStatus {
	switch {
	case fields.Success:
		return domain.ActivationStatusSuccess
	case fields.StatusCode == 504:
		return domain.ActivationStatusTimeout
	case fields.StatusCode >= 500:
		return domain.ActivationStatusAborted
	default:
		return domain.ActivationStatusDeveloperError
	}
}

// Await blocks until activationID's result is ingested from the broker's
// result stream (finalizing it) or deadline passes, whichever comes
// first. On deadline expiry it returns a werr.KindTimeout error without
// finalizing — that responsibility belongs to the caller, which knows
// the right error envelope to attach (spec §4.6.1 step 11).
func (m *Manager) Await(ctx context.Context, namespace, activationID string, deadline time.Time) (*domain.Activation, error) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return nil, werr.Timeoutf("activation %s did not complete before deadline", activationID)
	}

	msg, err := m.broker.ReadBlocking(ctx, activationID, remaining)
	if err != nil {
		if err == broker.ErrNoMessage {
			// A result may have been ingested via a path other than this
			// call's own ReadBlocking (e.g. a concurrent awaiter for the
			// same activation); check once before declaring timeout.
			if rec, getErr := m.store.GetActivation(ctx, namespace, activationID); getErr == nil && rec.Status.IsTerminal() {
				return rec, nil
			}
			return nil, werr.Timeoutf("activation %s did not complete before deadline", activationID)
		}
		return nil, werr.Wrap(werr.KindServiceUnavailable, "await activation result", err)
	}

	if err := m.ingestResult(ctx, namespace, msg); err != nil {
		return nil, err
	}
	return m.store.GetActivation(ctx, namespace, activationID)
}

// ingestResult translates a broker result message into FinalizeFields
// and applies them.
func (m *Manager) ingestResult(ctx context.Context, namespace string, msg *broker.ActivationResultMessage) error {
	ctx = observability.InjectTraceContext(ctx, observability.TraceContext{TraceParent: msg.TraceParent})

	var envelope struct {
		Success bool                   `json:"success"`
		Result  map[string]interface{} `json:"result"`
	}
	if len(msg.Response) > 0 {
		_ = json.Unmarshal(msg.Response, &envelope)
	}

	errMsg := ""
	if !envelope.Success {
		if v, ok := envelope.Result["error"]; ok {
			if s, ok := v.(string); ok {
				errMsg = s
			}
		}
	}

	if err := m.Finalize(ctx, namespace, msg.ActivationID, FinalizeFields{
		StatusCode: msg.StatusCode,
		Success:    envelope.Success,
		Result:     envelope.Result,
		Error:      errMsg,
		Logs:       msg.Logs,
		DurationMS: msg.DurationMS,
		InvokerID:  msg.InvokerID,
	}); err != nil {
		return err
	}

	logging.OpWithTrace(observability.GetTraceID(ctx), "").Debug(
		"activation result ingested",
		"activation_id", msg.ActivationID,
		"invoker", msg.InvokerID,
	)
	return nil
}
