package runtime

import (
	"time"

	"github.com/goadesign/agentrun/engine"
)

// Signal names, contractual per spec.md §4.6/§6. The teacher's
// runtime/agent/interrupt package establishes the "<namespace>.<verb>"
// naming convention this module follows.
const (
	SignalPause        = "agentrun.execution.pause"
	SignalResume       = "agentrun.execution.resume"
	SignalCancel       = "agentrun.execution.cancel"
	SignalApprove      = "agentrun.execution.approve"
	SignalFeedback     = "agentrun.execution.feedback"
	SignalUpdateBudget = "agentrun.execution.update_budget"
)

type (
	// PauseSignal carries the payload of a pause(reason) signal.
	PauseSignal struct {
		Reason string `json:"reason"`
	}

	// ResumeSignal carries the payload of a resume(reason) signal.
	ResumeSignal struct {
		Reason string `json:"reason"`
	}

	// CancelSignal carries the payload of a cancel_execution(reason) signal.
	CancelSignal struct {
		Reason string `json:"reason"`
	}

	// ApproveSignal carries the payload of an approve_action(approved,
	// feedback) signal.
	ApproveSignal struct {
		Approved bool   `json:"approved"`
		Feedback string `json:"feedback"`
	}

	// FeedbackSignal carries the payload of a provide_feedback(text) signal.
	FeedbackSignal struct {
		Text string `json:"text"`
	}

	// UpdateBudgetSignal carries the payload of an
	// update_budget(new_budget_usd, reason) signal.
	UpdateBudgetSignal struct {
		NewBudgetUSD float64 `json:"new_budget_usd"`
		Reason       string  `json:"reason"`
	}
)

// signalController drains the six workflow signals into typed payloads,
// grounded on runtime/agent/interrupt.Controller's per-signal channel
// wiring.
type signalController struct {
	pause        engine.SignalChannel
	resume       engine.SignalChannel
	cancel       engine.SignalChannel
	approve      engine.SignalChannel
	feedback     engine.SignalChannel
	updateBudget engine.SignalChannel
}

func newSignalController(wfCtx engine.WorkflowContext) *signalController {
	return &signalController{
		pause:        wfCtx.SignalChannel(SignalPause),
		resume:       wfCtx.SignalChannel(SignalResume),
		cancel:       wfCtx.SignalChannel(SignalCancel),
		approve:      wfCtx.SignalChannel(SignalApprove),
		feedback:     wfCtx.SignalChannel(SignalFeedback),
		updateBudget: wfCtx.SignalChannel(SignalUpdateBudget),
	}
}

func (c *signalController) pollPause() (PauseSignal, bool) {
	var s PauseSignal
	return s, c.pause.ReceiveAsync(&s)
}

func (c *signalController) pollResume() (ResumeSignal, bool) {
	var s ResumeSignal
	return s, c.resume.ReceiveAsync(&s)
}

func (c *signalController) pollCancel() (CancelSignal, bool) {
	var s CancelSignal
	return s, c.cancel.ReceiveAsync(&s)
}

func (c *signalController) pollApprove() (ApproveSignal, bool) {
	var s ApproveSignal
	return s, c.approve.ReceiveAsync(&s)
}

func (c *signalController) pollFeedback() (FeedbackSignal, bool) {
	var s FeedbackSignal
	return s, c.feedback.ReceiveAsync(&s)
}

func (c *signalController) pollUpdateBudget() (UpdateBudgetSignal, bool) {
	var s UpdateBudgetSignal
	return s, c.updateBudget.ReceiveAsync(&s)
}

// pollInterval paces the deterministic poll loop used to wait on more than
// one signal channel at a time (engine.WorkflowContext exposes only single-
// channel blocking Receive, so a multi-signal wait polls and backs off via
// the replay-safe Sleep primitive rather than the wall clock).
const pollInterval = 10 * time.Millisecond

// waitResumeOrBudgetOrCancel blocks until a resume, update_budget, or cancel
// signal arrives, used at the projected-cost approval gate (spec.md §4.3).
func (c *signalController) waitResumeOrBudgetOrCancel(wfCtx engine.WorkflowContext) (resumed bool, budget UpdateBudgetSignal, cancelled CancelSignal, didCancel bool, err error) {
	ctx := wfCtx.Context()
	for {
		if s, ok := c.pollCancel(); ok {
			return false, UpdateBudgetSignal{}, s, true, nil
		}
		if _, ok := c.pollResume(); ok {
			return true, UpdateBudgetSignal{}, CancelSignal{}, false, nil
		}
		if s, ok := c.pollUpdateBudget(); ok {
			return false, s, CancelSignal{}, false, nil
		}
		if err := wfCtx.Sleep(ctx, pollInterval); err != nil {
			return false, UpdateBudgetSignal{}, CancelSignal{}, false, err
		}
	}
}

// approvalTimeout bounds how long the workflow waits at a
// waiting_for_approval gate before treating the request as timed out
// (spec.md §5: "Approval timeouts of 24 hours require a runtime-provided
// timer").
const approvalTimeout = 24 * time.Hour

// waitApproveOrCancel blocks until an approve_action or cancel_execution
// signal arrives, or approvalTimeout elapses.
func (c *signalController) waitApproveOrCancel(wfCtx engine.WorkflowContext) (approve ApproveSignal, got bool, cancelled CancelSignal, didCancel bool, timedOut bool, err error) {
	ctx := wfCtx.Context()
	deadline := wfCtx.Now().Add(approvalTimeout)
	for {
		if s, ok := c.pollCancel(); ok {
			return ApproveSignal{}, false, s, true, false, nil
		}
		if s, ok := c.pollApprove(); ok {
			return s, true, CancelSignal{}, false, false, nil
		}
		if !wfCtx.Now().Before(deadline) {
			return ApproveSignal{}, false, CancelSignal{}, false, true, nil
		}
		if err := wfCtx.Sleep(ctx, pollInterval); err != nil {
			return ApproveSignal{}, false, CancelSignal{}, false, false, err
		}
	}
}
