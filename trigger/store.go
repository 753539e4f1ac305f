package trigger

import (
	"context"
	"time"
)

// Store defines the persistence layer for Trigger rows and their
// Executions. Implementations must be safe for concurrent use and must
// return ErrNotFound for missing rows, matching the teacher's
// registry/store.Store convention.
//
// Available implementations: trigger/store/memory (tests), trigger/store/mongo
// (production, go.mongodb.org/mongo-driver/v2).
type Store interface {
	SaveTrigger(ctx context.Context, t *Trigger) error
	GetTrigger(ctx context.Context, id string) (*Trigger, error)
	GetTriggerByWebhookID(ctx context.Context, webhookID string) (*Trigger, error)
	DeleteTrigger(ctx context.Context, id string) error
	ListTriggers(ctx context.Context) ([]*Trigger, error)

	AppendExecution(ctx context.Context, e *Execution) error
	// CountExecutionsSince counts executions for triggerID with
	// ExecutedAt >= since, used to enforce max_executions_per_hour.
	CountExecutionsSince(ctx context.Context, triggerID string, since time.Time) (int, error)
	// ListExecutions returns the most recent executions for triggerID,
	// newest first, bounded by limit (0 means unbounded).
	ListExecutions(ctx context.Context, triggerID string, limit int) ([]*Execution, error)
	// DeleteExecutions removes every execution for triggerID (cascade
	// delete on trigger deletion).
	DeleteExecutions(ctx context.Context, triggerID string) error
}
