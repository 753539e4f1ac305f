package trigger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type (
	// ConditionEvaluator judges whether a fired trigger's conditions are met
	// given the event data that accompanied the fire.
	ConditionEvaluator interface {
		Evaluate(ctx context.Context, t *Trigger, eventData map[string]any) (bool, error)
	}

	// ConditionPolicy governs how evaluator failures are handled. §9's Open
	// Question decision: fail-open ("on evaluator crash, treat as met") is
	// an explicit, configurable choice rather than hard-coded, defaulting to
	// true to match the source behavior.
	ConditionPolicy struct {
		FailOpen bool
	}

	// ruleEvaluator is the rule-based fallback: equality on dotted field
	// paths and time-window predicates (hour range, weekdays-only).
	ruleEvaluator struct{}

	// LLMEvaluator optionally replaces the rule-based path with an
	// LLM-backed judgment. Failures fall back to the rule-based evaluator
	// per §4.8.
	LLMEvaluator interface {
		EvaluateWithLLM(ctx context.Context, t *Trigger, eventData map[string]any) (bool, error)
	}

	// Evaluator composes an optional LLM evaluator, the rule-based
	// fallback, and a ConditionPolicy into the single ConditionEvaluator the
	// Service uses.
	Evaluator struct {
		LLM      LLMEvaluator
		Fallback ConditionEvaluator
		Policy   ConditionPolicy
	}
)

// DefaultConditionPolicy is fail-open, per §9's decision record.
var DefaultConditionPolicy = ConditionPolicy{FailOpen: true}

// NewEvaluator constructs an Evaluator. A nil llm means the rule-based
// evaluator runs directly with no LLM fast path.
func NewEvaluator(llm LLMEvaluator, policy ConditionPolicy) *Evaluator {
	return &Evaluator{LLM: llm, Fallback: &ruleEvaluator{}, Policy: policy}
}

// Evaluate tries the LLM evaluator first (if configured), falls back to the
// rule-based evaluator on LLM failure, and applies the fail-open/fail-closed
// policy if both fail.
func (e *Evaluator) Evaluate(ctx context.Context, t *Trigger, eventData map[string]any) (bool, error) {
	if e.LLM != nil {
		met, err := e.LLM.EvaluateWithLLM(ctx, t, eventData)
		if err == nil {
			return met, nil
		}
	}
	met, err := e.Fallback.Evaluate(ctx, t, eventData)
	if err == nil {
		return met, nil
	}
	if e.Policy.FailOpen {
		return true, nil
	}
	return false, err
}

// Evaluate implements ConditionEvaluator for the rule-based fallback.
// t.Conditions follows the wrapper shape of the source this spec was
// distilled from (trigger_service.py's _evaluate_simple_conditions):
//
//   - "field_matches" is a map of dotted field path to expected value,
//     e.g. {"field_matches": {"event.kind": "push"}} (spec.md §8 S6/S7)
//   - "time_conditions" is a map with an optional "hour_range" (a 2-element
//     [start, end] inclusive UTC hour range) and an optional
//     "weekdays_only" bool
//
// An empty Conditions map, or a Conditions map with neither key, always
// matches.
func (*ruleEvaluator) Evaluate(_ context.Context, t *Trigger, eventData map[string]any) (bool, error) {
	if raw, ok := t.Conditions["field_matches"]; ok {
		fieldMatches, ok := raw.(map[string]any)
		if !ok {
			return false, fmt.Errorf("trigger: field_matches condition must be a map")
		}
		for fieldPath, want := range fieldMatches {
			got, found := lookupDottedPath(eventData, fieldPath)
			if !found || !equalLoose(got, want) {
				return false, nil
			}
		}
	}

	if raw, ok := t.Conditions["time_conditions"]; ok {
		timeConditions, ok := raw.(map[string]any)
		if !ok {
			return false, fmt.Errorf("trigger: time_conditions condition must be a map")
		}
		if !matchesTimeConditions(timeConditions, time.Now().UTC()) {
			return false, nil
		}
	}

	return true, nil
}

func matchesTimeConditions(timeConditions map[string]any, now time.Time) bool {
	if raw, ok := timeConditions["hour_range"]; ok {
		start, end, ok := hourRange(raw)
		if ok && !(start <= now.Hour() && now.Hour() <= end) {
			return false
		}
	}
	if wd, ok := timeConditions["weekdays_only"].(bool); ok && wd {
		if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
			return false
		}
	}
	return true
}

// hourRange accepts a 2-element slice of anything toInt can coerce, per the
// [start, end] pair the source stores hour_range as.
func hourRange(v any) (start, end int, ok bool) {
	s, ok := v.([]any)
	if !ok || len(s) != 2 {
		return 0, 0, false
	}
	start, okStart := toInt(s[0])
	end, okEnd := toInt(s[1])
	return start, end, okStart && okEnd
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

// lookupDottedPath resolves a dotted path like "request.body.message_type"
// through nested map[string]any values.
func lookupDottedPath(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// equalLoose compares values after normalizing numeric types, since JSON
// round-tripping through the event broker commonly turns ints into
// float64s.
func equalLoose(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
