package orchestrator

import (
	"context"

	"github.com/oriys/whisk/internal/activation"
	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/logging"
	"github.com/oriys/whisk/internal/werr"
)

// SequenceRequest carries the parameters of an invoke_sequence call
// (spec §4.6.2).
type SequenceRequest struct {
	Namespace string
	Sequence  *domain.Action // resolved action with Exec.Kind == sequence
	Params    map[string]interface{}
	Blocking  bool
	Subject   string
	CauseID   string
}

// InvokeSequence runs a sequence action's components strictly in order,
// threading each component's result into the next's parameters, and
// stops at the first component failure.
func (o *Orchestrator) InvokeSequence(ctx context.Context, req SequenceRequest) (*InvokeResult, error) {
	components := req.Sequence.Exec.Components
	if len(components) == 0 {
		return nil, werr.Validationf("sequence %s has no components", req.Sequence.FQN().String())
	}

	seqActivationID, err := o.activation.Open(ctx, activation.OpenSpec{
		Namespace: req.Namespace,
		Name:      req.Sequence.FQN().Path(),
		Subject:   req.Subject,
		Kind:      SequenceKind,
		Limits:    req.Sequence.Limits,
		CauseID:   req.CauseID,
	})
	if err != nil {
		return nil, werr.Wrap(werr.KindInternal, "open sequence activation", err)
	}

	if !req.Blocking {
		go o.runSequenceComponents(context.WithoutCancel(ctx), req, seqActivationID)
		return &InvokeResult{ActivationID: seqActivationID}, nil
	}

	lastResp, err := o.runSequenceComponents(ctx, req, seqActivationID)
	if err != nil {
		return nil, err
	}

	rec, getErr := o.store.GetActivation(ctx, req.Namespace, seqActivationID)
	if getErr != nil {
		return nil, werr.Wrap(werr.KindInternal, "load finalized sequence activation", getErr)
	}
	_ = lastResp
	return &InvokeResult{ActivationID: seqActivationID, Activation: rec}, nil
}

// runSequenceComponents executes every component in order, finalizing
// the sequence's own activation record with the last component's
// response (or the first failure) before returning.
func (o *Orchestrator) runSequenceComponents(ctx context.Context, req SequenceRequest, seqActivationID string) (domain.ActivationResponse, error) {
	currentParams := req.Params
	var lastResp domain.ActivationResponse

	for _, componentPath := range req.Sequence.Exec.Components {
		fqn, err := domain.ParseFQN(componentPath)
		if err != nil {
			resp := domain.ActivationResponse{StatusCode: 400, Success: false, Error: err.Error()}
			o.finalizeSequence(ctx, req.Namespace, seqActivationID, resp)
			return resp, werr.Validationf("invalid sequence component %q: %v", componentPath, err)
		}

		childResult, err := o.InvokeAction(ctx, InvokeActionRequest{
			Namespace:  fqn.Namespace,
			ActionPath: fqn.Path(),
			Params:     currentParams,
			Blocking:   true,
			ResultOnly: false,
			Subject:    req.Subject,
			CauseID:    seqActivationID,
		})
		if err != nil {
			// A transport-level failure (not-found, no invoker, timeout) for
			// a component aborts the chain the same way a business failure
			// does; surface it as the sequence's own failure envelope.
			resp := domain.ActivationResponse{StatusCode: werr.HTTPStatus(werr.KindOf(err)), Success: false, Error: err.Error()}
			o.finalizeSequence(ctx, req.Namespace, seqActivationID, resp)
			return resp, err
		}

		lastResp = childResult.Activation.Response
		if !lastResp.Success {
			o.finalizeSequence(ctx, req.Namespace, seqActivationID, lastResp)
			return lastResp, werr.New(kindForStatusCode(lastResp.StatusCode), lastResp.Error)
		}

		currentParams = resultAsParams(lastResp.Result)
	}

	o.finalizeSequence(ctx, req.Namespace, seqActivationID, lastResp)
	return lastResp, nil
}

// resultAsParams threads a component's result into the next component's
// parameters: the result mapping is passed through as is, and a nil
// result becomes an empty mapping. A result that is not a JSON object is
// not wrapped; ingestResult cannot decode it into the result mapping, so
// the next component receives an empty mapping.
func resultAsParams(result map[string]interface{}) map[string]interface{} {
	if result == nil {
		return map[string]interface{}{}
	}
	return result
}

func (o *Orchestrator) finalizeSequence(ctx context.Context, namespace, activationID string, resp domain.ActivationResponse) {
	fields := activation.FinalizeFields{
		StatusCode: resp.StatusCode,
		Success:    resp.Success,
		Result:     resp.Result,
		Error:      resp.Error,
	}
	if fields.StatusCode == 0 && resp.Success {
		fields.StatusCode = 200
	}
	if err := o.activation.Finalize(ctx, namespace, activationID, fields); err != nil {
		// Finalize is idempotent; a failure here means the store write
		// itself failed, which we can only log — the sequence outcome was
		// already decided.
		logging.Op().Warn("failed to finalize sequence activation", "activation_id", activationID, "err", err)
	}
}
