package triggerwf

import (
	"encoding/json"
	"fmt"
)

// decodeInto mirrors runtime.decodeInto: it coerces an activity's any-typed
// input/result into a concrete value across both the in-memory test engine
// (same-shape pass-through) and a production Temporal adapter (JSON-decoded
// map[string]any).
func decodeInto[T any](input any) (T, error) {
	var zero T
	if in, ok := input.(T); ok {
		return in, nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return zero, fmt.Errorf("triggerwf: encode: %w", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("triggerwf: decode: %w", err)
	}
	return out, nil
}
