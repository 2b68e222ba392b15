package orchestrator

import (
	"context"

	"github.com/oriys/whisk/internal/domain"
	"github.com/oriys/whisk/internal/logging"
	"github.com/oriys/whisk/internal/werr"
)

// InvokeTriggerRequest carries the parameters of an invoke_trigger call
// (spec §4.6.3).
type InvokeTriggerRequest struct {
	Namespace   string
	TriggerName string
	Params      map[string]interface{}
	Subject     string
}

// InvokeTrigger resolves a trigger, merges its default parameters with
// the caller's, and fires every active rule bound to it non-blocking.
// Per-rule failures are logged, never aborting the rest of the fan-out.
func (o *Orchestrator) InvokeTrigger(ctx context.Context, req InvokeTriggerRequest) ([]string, error) {
	trigger, err := o.store.GetTrigger(ctx, req.Namespace, req.TriggerName)
	if err != nil {
		return nil, err
	}

	merged := domain.MergeParams(domain.ParamsToMap(trigger.Parameters), req.Params)

	rules, err := o.store.ListRulesForTrigger(ctx, req.Namespace, req.TriggerName)
	if err != nil {
		return nil, werr.Wrap(werr.KindInternal, "list rules for trigger", err)
	}

	var activationIDs []string
	for _, rule := range rules {
		if !rule.IsActive() {
			continue
		}

		actionFQN, err := domain.ParseFQN(rule.Action)
		if err != nil {
			logging.Op().Warn("rule action reference is malformed", "rule", rule.Name, "action", rule.Action, "err", err)
			continue
		}

		if _, err := o.store.GetAction(ctx, actionFQN.Namespace, actionFQN.Package, actionFQN.Name); err != nil {
			logging.Op().Warn("rule target action not found, skipping", "rule", rule.Name, "action", rule.Action, "err", err)
			continue
		}

		result, err := o.InvokeAction(ctx, InvokeActionRequest{
			Namespace:  actionFQN.Namespace,
			ActionPath: actionFQN.Path(),
			Params:     merged,
			Blocking:   false,
			Subject:    req.Subject,
		})
		if err != nil {
			logging.Op().Warn("rule dispatch failed, continuing fan-out", "rule", rule.Name, "action", rule.Action, "err", err)
			continue
		}
		activationIDs = append(activationIDs, result.ActivationID)
	}

	return activationIDs, nil
}
