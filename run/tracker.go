package run

import (
	"context"
	"time"

	"github.com/goadesign/agentrun/hooks"
	"github.com/goadesign/agentrun/telemetry"
)

// TrackingPublisher wraps a hooks.Publisher and projects the
// WorkflowStarted/Completed/Failed/Cancelled events onto Store, so a run's
// coarse status can be queried without talking to the workflow engine at
// all. Every call is forwarded to Next unchanged; tracking is best-effort
// and never blocks or fails the underlying publish.
//
// Grounded on the teacher's features/run package, which keeps its own
// status projection next to (not inside) the event publisher.
type TrackingPublisher struct {
	Store  Store
	Next   hooks.Publisher
	Logger telemetry.Logger
}

var _ hooks.Publisher = (*TrackingPublisher)(nil)

// Publish implements hooks.Publisher.
func (p *TrackingPublisher) Publish(events []hooks.Event) {
	if p.Next != nil {
		p.Next.Publish(events)
	}
	logger := p.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if p.Store == nil {
		return
	}
	for _, e := range events {
		status, ok := statusForEvent(e.EventType)
		if !ok {
			continue
		}
		taskID, _ := e.Data["task_id"].(string)
		agentID, _ := e.Data["agent_id"].(string)
		if taskID == "" {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := p.upsertStatus(ctx, taskID, agentID, status, e.Timestamp)
		cancel()
		if err != nil {
			logger.Warn(ctx, "run: failed to record status", "task_id", taskID, "status", status, "err", err)
		}
	}
}

func (p *TrackingPublisher) upsertStatus(ctx context.Context, taskID, agentID string, status Status, eventTime time.Time) error {
	record, err := p.Store.Load(ctx, taskID)
	if err != nil {
		if err != ErrNotFound {
			return err
		}
		record = Record{TaskID: taskID, AgentID: agentID, StartedAt: eventTime}
	}
	if agentID != "" {
		record.AgentID = agentID
	}
	record.Status = status
	record.UpdatedAt = eventTime
	return p.Store.Upsert(ctx, record)
}

func statusForEvent(typ hooks.EventType) (Status, bool) {
	switch typ {
	case hooks.WorkflowStarted:
		return StatusRunning, true
	case hooks.WorkflowCompleted:
		return StatusCompleted, true
	case hooks.WorkflowFailed:
		return StatusFailed, true
	case hooks.WorkflowCancelled:
		return StatusCancelled, true
	default:
		return "", false
	}
}
