// Package orchestrator implements the Invocation Orchestrator (spec
// §4.6): the core that resolves actions and triggers, publishes
// invocations onto the message broker, coordinates blocking callers
// against the Activation Manager, and chains sequence components.
//
// # Pipeline
//
// invoke_action:
//
//  1. resolve the action from the entity store
//  2. clamp the caller's requested timeout to the action's own limit
//  3. dispatch on exec kind: sequence actions delegate to invoke_sequence
//  4. build the code reference and the invoker-facing action descriptor
//  5. open a pending activation record (write-before-publish)
//  6. select a target invoker and publish the invocation
//  7. for blocking calls, await the result and finalize; non-blocking
//     calls return immediately with just the activation id
//
// # Concurrency
//
// Every public method here suspends only at the I/O boundaries named in
// spec §5: entity store reads, blob store reads, broker publish/await.
// Namespace and action resolution run concurrently via errgroup where
// both are needed, mirroring the teacher's parallel pre-fetch idiom.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oriys/whisk/internal/activation"
	"github.com/oriys/whisk/internal/blobstore"
	"github.com/oriys/whisk/internal/broker"
	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/invoker"
	"github.com/oriys/whisk/internal/logging"
	"github.com/oriys/whisk/internal/metrics"
	"github.com/oriys/whisk/internal/observability"
	"github.com/oriys/whisk/internal/store"
	"github.com/oriys/whisk/internal/validation"
	"github.com/oriys/whisk/internal/werr"
)

// SequenceKind is the exec kind recorded on a sequence's own activation
// annotations; sequences have no runtime/memory footprint of their own.
const SequenceKind = "sequence"

// Orchestrator is the Invocation Orchestrator.
type Orchestrator struct {
	store      store.MetadataStore
	blob       blobstore.Client
	broker     broker.Broker
	activation *activation.Manager
	scheduler  *invoker.Scheduler
	bucket     string
}

// New builds an Orchestrator wired to its collaborators. bucket is the
// blob store bucket actions' code objects live in.
func New(s store.MetadataStore, b blobstore.Client, mq broker.Broker, am *activation.Manager, sched *invoker.Scheduler, bucket string) *Orchestrator {
	return &Orchestrator{store: s, blob: b, broker: mq, activation: am, scheduler: sched, bucket: bucket}
}

// InvokeActionRequest carries the parameters of a single invoke_action
// call (spec §4.6.1).
type InvokeActionRequest struct {
	Namespace  string
	ActionPath string // "name" or "pkg/name"
	Params     map[string]interface{}
	Blocking   bool
	ResultOnly bool
	TimeoutMS  int // 0 means "use the action's configured limit"
	Subject    string
	CauseID    string // set when this invocation is a sequence component or rule fan-out target
}

// InvokeResult is the outcome of invoke_action/invoke_sequence: always
// an activation id, plus the full record once a blocking call completes.
type InvokeResult struct {
	ActivationID string
	Activation   *domain.Activation // nil for non-blocking invocations
}

// Result returns the activation's response result, honoring result_only
// shaping; nil when the invocation was non-blocking.
func (r *InvokeResult) Result() map[string]interface{} {
	if r.Activation == nil {
		return nil
	}
	return r.Activation.Response.Result
}

// InvokeAction resolves and runs a single action invocation, or delegates
// to InvokeSequence when the resolved action is a sequence.
func (o *Orchestrator) InvokeAction(ctx context.Context, req InvokeActionRequest) (*InvokeResult, error) {
	if err := validateParamSize(req.Params); err != nil {
		return nil, err
	}

	pkg, name, err := domain.ParseActionPath(req.ActionPath)
	if err != nil {
		return nil, werr.Validationf("invalid action path %q: %v", req.ActionPath, err)
	}

	var action *domain.Action
	var ns *domain.Namespace
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := o.store.GetAction(gctx, req.Namespace, pkg, name)
		if err != nil {
			return err
		}
		action = a
		return nil
	})
	g.Go(func() error {
		n, err := o.store.GetNamespace(gctx, req.Namespace)
		if err != nil {
			return err
		}
		ns = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	_ = ns // resolved for parity with the teacher's parallel pre-fetch; not otherwise consulted here

	ctx, span := observability.StartSpan(ctx, "orchestrator.invoke_action",
		observability.AttrFunctionName.String(action.FQN().String()),
		observability.AttrFunctionID.String(action.Name),
		observability.AttrRuntime.String(action.Exec.Runtime),
	)
	defer span.End()

	if action.IsSequence() {
		result, err := o.InvokeSequence(ctx, SequenceRequest{
			Namespace: req.Namespace,
			Sequence:  action,
			Params:    req.Params,
			Blocking:  req.Blocking,
			Subject:   req.Subject,
			CauseID:   req.CauseID,
		})
		if err != nil {
			observability.SetSpanError(span, err)
		} else {
			observability.SetSpanOK(span)
		}
		return result, err
	}

	effectiveTimeout := action.Limits.TimeoutMS
	if req.TimeoutMS > 0 {
		effectiveTimeout = req.TimeoutMS
		if effectiveTimeout > action.Limits.TimeoutMS {
			logging.Op().Warn("clamping requested timeout to action limit",
				"action", action.FQN().String(), "requested_ms", req.TimeoutMS, "limit_ms", action.Limits.TimeoutMS)
			effectiveTimeout = action.Limits.TimeoutMS
		}
	}
	effectiveTimeout = validation.ClampTimeout(effectiveTimeout)

	result, err := o.invokeCodeBearing(ctx, action, req, effectiveTimeout)
	if err != nil {
		observability.SetSpanError(span, err)
	} else {
		observability.SetSpanOK(span)
	}
	return result, err
}

// invokeCodeBearing runs spec §4.6.1 steps 4-11 for a resolved,
// code-bearing action.
func (o *Orchestrator) invokeCodeBearing(ctx context.Context, action *domain.Action, req InvokeActionRequest, timeoutMS int) (*InvokeResult, error) {
	blobKey := blobstore.ObjectPath(action.Namespace, action.Name, action.Exec.CodeHash)

	paramsJSON, err := json.Marshal(req.Params)
	if err != nil {
		return nil, werr.Validationf("invocation parameters could not be serialized: %v", err)
	}
	defaultParamsJSON, _ := json.Marshal(domain.ParamsToMap(action.Parameters))

	activationID, err := o.activation.Open(ctx, activation.OpenSpec{
		Namespace: req.Namespace,
		Name:      req.ActionPath,
		Subject:   req.Subject,
		Kind:      action.Exec.Runtime,
		Limits:    action.Limits,
		CauseID:   req.CauseID,
	})
	if err != nil {
		return nil, werr.Wrap(werr.KindInternal, "open activation", err)
	}
	observability.SpanFromContext(ctx).SetAttributes(observability.AttrRequestID.String(activationID))

	startMS := time.Now()
	deadline := startMS.Add(time.Duration(timeoutMS) * time.Millisecond)

	invokerChoice, err := o.scheduler.Select(action.Exec.Runtime, action.Limits.MemoryMB)
	if err != nil {
		o.finalizeUnavailable(ctx, req.Namespace, activationID, 503, "no invoker available for runtime "+action.Exec.Runtime)
		return nil, werr.ServiceUnavailablef("no invoker available for runtime %s", action.Exec.Runtime)
	}
	coldStart := !invokerChoice.IsWarmFor(action.Exec.Runtime)

	msg := broker.InvocationMessage{
		ActivationID:   activationID,
		Action:         action.FQN().String(),
		Params:         paramsJSON,
		Blocking:       req.Blocking,
		Namespace:      req.Namespace,
		DeadlineUnixMS: deadline.UnixMilli(),
		Descriptor: broker.ActionDescriptor{
			Runtime:    action.Exec.Runtime,
			Main:       action.Exec.Main,
			Binary:     action.Exec.Binary,
			BlobKey:    blobKey,
			CodeHash:   action.Exec.CodeHash,
			TimeoutMS:  action.Limits.TimeoutMS,
			MemoryMB:   action.Limits.MemoryMB,
			LogsMB:     action.Limits.LogsMB,
			Parameters: defaultParamsJSON,
		},
		TraceParent: observability.ExtractTraceContext(ctx).TraceParent,
	}

	if _, err := o.broker.PublishInvocation(ctx, msg); err != nil {
		o.finalizeUnavailable(ctx, req.Namespace, activationID, 502, fmt.Sprintf("publish invocation: %v", err))
		return nil, werr.ServiceUnavailablef("publish invocation: %v", err)
	}

	logging.OpWithTrace(observability.GetTraceID(ctx), observability.GetSpanID(ctx)).Debug(
		"invocation published",
		"activation_id", activationID,
		"action", action.FQN().String(),
		"invoker", invokerChoice.ID,
	)

	if !req.Blocking {
		return &InvokeResult{ActivationID: activationID}, nil
	}

	rec, err := o.activation.Await(ctx, req.Namespace, activationID, deadline)
	if err != nil {
		if werr.KindOf(err) == werr.KindTimeout {
			_ = o.activation.Finalize(ctx, req.Namespace, activationID, activation.FinalizeFields{
				StatusCode: 504,
				Success:    false,
				Result:     map[string]interface{}{"error": "timeout waiting for invoker result"},
			})
		}
		return nil, err
	}

	metrics.Global().RecordInvocationWithDetails(action.FQN().String(), action.Name, action.Exec.Runtime, rec.DurationMS, coldStart, rec.Response.Success)
	observability.SpanFromContext(ctx).SetAttributes(
		observability.AttrColdStart.Bool(coldStart),
		observability.AttrDurationMs.Int64(rec.DurationMS),
	)

	logging.Default().Log(&logging.ActivationLog{
		ActivationID: activationID,
		TraceID:      observability.GetTraceID(ctx),
		SpanID:       observability.GetSpanID(ctx),
		Namespace:    req.Namespace,
		Action:       action.FQN().String(),
		ActionName:   action.Name,
		Runtime:      action.Exec.Runtime,
		DurationMs:   rec.DurationMS,
		ColdStart:    coldStart,
		Success:      rec.Response.Success,
		Error:        rec.Response.Error,
		InputSize:    jsonSize(req.Params),
		OutputSize:   jsonSize(rec.Response.Result),
	})

	return &InvokeResult{ActivationID: activationID, Activation: rec}, nil
}

// finalizeUnavailable finalizes an activation with a service-unavailable
// envelope, logging (but not propagating) a failure to do so.
func (o *Orchestrator) finalizeUnavailable(ctx context.Context, namespace, activationID string, statusCode int, message string) {
	if err := o.activation.Finalize(ctx, namespace, activationID, activation.FinalizeFields{
		StatusCode: statusCode,
		Success:    false,
		Result:     map[string]interface{}{"error": message},
	}); err != nil {
		logging.Op().Warn("failed to finalize unavailable activation", "activation_id", activationID, "err", err)
	}
}

// jsonSize returns the serialized byte size of v, or 0 if it cannot be
// marshaled (used only for best-effort activation-log size fields).
func jsonSize(v interface{}) int {
	if v == nil {
		return 0
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(encoded)
}

func validateParamSize(params map[string]interface{}) error {
	if len(params) == 0 {
		return nil
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return werr.Validationf("parameters could not be serialized: %v", err)
	}
	if len(encoded) > validation.MaxParameterSize {
		return werr.Validationf("parameters size exceeds maximum size of %d bytes", validation.MaxParameterSize)
	}
	return nil
}

// kindForStatusCode maps an activation's terminal HTTP-shaped status code
// back to an error Kind, used when a sequence or rule fan-out needs to
// re-raise a component's failure in the taxonomy the façade understands.
func kindForStatusCode(code int) werr.Kind {
	switch code {
	case 400:
		return werr.KindValidation
	case 401:
		return werr.KindAuth
	case 403:
		return werr.KindForbidden
	case 404:
		return werr.KindNotFound
	case 409:
		return werr.KindConflict
	case 503:
		return werr.KindServiceUnavailable
	case 504:
		return werr.KindTimeout
	default:
		return werr.KindInternal
	}
}
