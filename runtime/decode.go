package runtime

import (
	"encoding/json"
	"fmt"
)

// decodeInto coerces an activity's any-typed input into a concrete In value.
// The in-memory engine hands the request's Input to the handler unchanged,
// so a value of type In comes through directly; a production Temporal
// adapter instead hands back a value decoded
// from the wire, which arrives as a map[string]any and needs the same JSON
// round-trip performed explicitly here.
func decodeInto[In any](input any) (In, error) {
	var zero In
	if in, ok := input.(In); ok {
		return in, nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return zero, fmt.Errorf("runtime: encode activity input: %w", err)
	}
	var out In
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("runtime: decode activity input: %w", err)
	}
	return out, nil
}

// decodeJSONInto parses a tool call's JSON argument string into dest,
// leaving dest untouched (zero value) on empty or malformed input —
// tool arguments are best-effort and a malformed payload should not abort
// tool dispatch.
func decodeJSONInto(arguments string, dest any) error {
	if arguments == "" {
		return nil
	}
	return json.Unmarshal([]byte(arguments), dest)
}
