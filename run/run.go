// Package run implements the run status store: an observability side-table
// that tracks the lifecycle of each Agent Execution Workflow instance
// (pending/running/completed/failed/cancelled/paused) independently of the
// workflow's own durable history, so status can be queried cheaply without
// replaying or querying the engine.
//
// Grounded on the teacher's runtime/agent/run package (Record/Status/Phase
// shape, Store interface), simplified to this module's flat
// string-identifier conventions (no agent.Ident/tools.Ident types).
package run

import (
	"context"
	"errors"
	"time"
)

// Status is the coarse-grained lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Record captures persistent metadata for one Agent Execution Workflow
// instance, keyed by TaskID (the workflow id).
type Record struct {
	TaskID    string
	AgentID   string
	Status    Status
	StartedAt time.Time
	UpdatedAt time.Time
	Labels    map[string]string
	Metadata  map[string]any
}

// Store persists run metadata for observability and lookup.
type Store interface {
	// Upsert inserts or replaces the record for record.TaskID.
	Upsert(ctx context.Context, record Record) error
	// Load retrieves the record for taskID. Returns ErrNotFound if unknown.
	Load(ctx context.Context, taskID string) (Record, error)
	// ListByAgent returns every record for agentID, most recently started
	// first.
	ListByAgent(ctx context.Context, agentID string) ([]Record, error)
}

// ErrNotFound indicates no run record exists for the given task id.
var ErrNotFound = errors.New("run: not found")
