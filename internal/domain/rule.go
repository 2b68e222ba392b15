package domain

import "time"

// RuleStatus controls whether a rule fires when its trigger activates.
type RuleStatus string

const (
	RuleStatusActive   RuleStatus = "active"
	RuleStatusInactive RuleStatus = "inactive"
)

// Rule binds a trigger to an action: whenever the trigger fires and the
// rule is active, the action is invoked non-blocking with the trigger's
// merged parameters.
type Rule struct {
	Namespace string     `json:"namespace"`
	Name      string     `json:"name"`
	Trigger   string     `json:"trigger"` // FQN string of the bound trigger
	Action    string     `json:"action"`  // FQN string of the bound action
	Status    RuleStatus `json:"status"`
	Version   string     `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// FQN returns this rule's fully-qualified name.
func (r Rule) FQN() FQN {
	return FQN{Namespace: r.Namespace, Name: r.Name}
}

// IsActive reports whether the rule currently fires on trigger activation.
func (r Rule) IsActive() bool {
	return r.Status == RuleStatusActive
}
