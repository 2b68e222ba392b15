package domain

import "time"

// Trigger is a named event source that rules can bind actions to. Feeds
// (external event provider references) are carried as an opaque annotation;
// this control plane does not itself manage feed lifecycles.
type Trigger struct {
	Namespace   string     `json:"namespace"`
	Name        string     `json:"name"`
	Parameters  []KeyValue `json:"parameters,omitempty"`
	Annotations []KeyValue `json:"annotations,omitempty"`
	Version     string     `json:"version"`
	Publish     bool       `json:"publish"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// FQN returns this trigger's fully-qualified name.
func (t Trigger) FQN() FQN {
	return FQN{Namespace: t.Namespace, Name: t.Name}
}
