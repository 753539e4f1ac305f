// Package budget tracks the cost consumed by a single agent execution run
// against a caller-supplied limit. It is a plain, workflow-local value type:
// no I/O, safe to mutate directly inside workflow code, and cheap to carry in
// workflow state across replay.
//
// Grounded in spirit on the teacher's runtime/agent/policy.CapsState, which
// tracks remaining tool-call budget as the planner consumes it; this
// generalizes that idea from a call-count cap to an arbitrary float cost
// ledger (token cost, dollar cost, or any other unit the caller chooses).
package budget

// Tracker accumulates cost against a limit and reports threshold crossings.
type Tracker struct {
	Limit          float64
	Consumed       float64
	WarningPercent float64
	warningSent    bool
}

// NewTracker constructs a Tracker with the given limit. warningPercent is the
// fraction of the limit (0–1) at which ShouldWarn starts returning true; zero
// disables warnings.
func NewTracker(limit, warningPercent float64) *Tracker {
	return &Tracker{Limit: limit, WarningPercent: warningPercent}
}

// AddCost records additional consumption. Negative costs are ignored.
func (t *Tracker) AddCost(cost float64) {
	if cost <= 0 {
		return
	}
	t.Consumed += cost
}

// Remaining returns the unconsumed portion of the limit. A non-positive
// Limit means unlimited, in which case Remaining always returns a large
// positive sentinel rather than zero or a negative number.
func (t *Tracker) Remaining() float64 {
	if t.Limit <= 0 {
		return 1<<63 - 1
	}
	r := t.Limit - t.Consumed
	if r < 0 {
		return 0
	}
	return r
}

// UsagePercentage returns consumption as a fraction of the limit in [0, 1+).
// Returns 0 when the limit is unbounded.
func (t *Tracker) UsagePercentage() float64 {
	if t.Limit <= 0 {
		return 0
	}
	return t.Consumed / t.Limit
}

// IsExceeded reports whether consumption has reached or passed the limit.
// An unbounded tracker (Limit <= 0) is never exceeded.
func (t *Tracker) IsExceeded() bool {
	if t.Limit <= 0 {
		return false
	}
	return t.Consumed >= t.Limit
}

// ShouldWarn reports whether usage has crossed WarningPercent and a warning
// has not yet been acknowledged via MarkWarningSent. Returns false once
// MarkWarningSent has been called, until AddCost pushes usage past the
// threshold again after a reset (ResetWarning).
func (t *Tracker) ShouldWarn() bool {
	if t.WarningPercent <= 0 || t.Limit <= 0 {
		return false
	}
	return !t.warningSent && t.UsagePercentage() >= t.WarningPercent
}

// MarkWarningSent records that the current warning threshold crossing has
// been published, suppressing further ShouldWarn calls until ResetWarning.
func (t *Tracker) MarkWarningSent() {
	t.warningSent = true
}

// ResetWarning clears the warning-sent flag, allowing ShouldWarn to fire
// again on the next threshold crossing (used when a budget is increased
// mid-run via SignalUpdateBudget).
func (t *Tracker) ResetWarning() {
	t.warningSent = false
}

// UpdateLimit changes the limit, e.g. in response to an operator signal
// raising the cap mid-run. It resets the warning flag so a newly-relevant
// threshold can fire again.
func (t *Tracker) UpdateLimit(limit float64) {
	t.Limit = limit
	t.ResetWarning()
}
