package domain

// ParamsToMap converts the wire-protocol parameter-list form
// ([]KeyValue, as sent in request bodies and stored on entities) into the
// mapping form the orchestrator and invoker actually operate on. Last
// write wins when keys repeat.
func ParamsToMap(kvs []KeyValue) map[string]interface{} {
	if len(kvs) == 0 {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value
	}
	return out
}

// MapToParams converts a mapping back into the wire-protocol
// parameter-list form. Key order is not significant to callers; this is
// the inverse of ParamsToMap for unique keys, satisfying the spec's
// serialization round-trip law.
func MapToParams(m map[string]interface{}) []KeyValue {
	if len(m) == 0 {
		return nil
	}
	out := make([]KeyValue, 0, len(m))
	for k, v := range m {
		out = append(out, KeyValue{Key: k, Value: v})
	}
	return out
}

// MergeParams overlays override on top of base, override winning on key
// collision. Used wherever defaults are combined with caller-supplied
// parameters: package parameter inheritance, action defaults, and
// trigger-fire parameter merging (spec §4.6.3).
func MergeParams(base, override map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
