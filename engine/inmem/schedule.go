package inmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/goadesign/agentrun/engine"
)

// ScheduleManager is an in-memory engine.ScheduleManager. It keeps specs in
// a map rather than driving real cron timing — tests call Fire to simulate a
// cadence tick deterministically instead of waiting on a clock.
type ScheduleManager struct {
	engine *Engine

	mu        sync.Mutex
	schedules map[string]engine.ScheduleSpec
	counts    map[string]int
}

var _ engine.ScheduleManager = (*ScheduleManager)(nil)

// NewScheduleManager constructs a ScheduleManager that starts workflows on
// the given engine when fired.
func NewScheduleManager(eng *Engine) *ScheduleManager {
	return &ScheduleManager{engine: eng, schedules: make(map[string]engine.ScheduleSpec)}
}

func (m *ScheduleManager) CreateSchedule(_ context.Context, spec engine.ScheduleSpec) error {
	if spec.ID == "" {
		return fmt.Errorf("inmem schedule manager: schedule id cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.schedules[spec.ID]; exists {
		return engine.ErrAlreadyRegistered
	}
	m.schedules[spec.ID] = spec
	return nil
}

func (m *ScheduleManager) UpdateSchedule(_ context.Context, id string, spec engine.ScheduleSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.schedules[id]; !exists {
		return engine.ErrScheduleNotFound
	}
	spec.ID = id
	m.schedules[id] = spec
	return nil
}

func (m *ScheduleManager) PauseSchedule(_ context.Context, id string) error {
	return m.setPaused(id, true)
}

func (m *ScheduleManager) ResumeSchedule(_ context.Context, id string) error {
	return m.setPaused(id, false)
}

func (m *ScheduleManager) setPaused(id string, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	spec, exists := m.schedules[id]
	if !exists {
		return engine.ErrScheduleNotFound
	}
	spec.Paused = paused
	m.schedules[id] = spec
	return nil
}

func (m *ScheduleManager) DeleteSchedule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.schedules[id]; !exists {
		return engine.ErrScheduleNotFound
	}
	delete(m.schedules, id)
	return nil
}

// Get returns the current spec for id, for test assertions.
func (m *ScheduleManager) Get(id string) (engine.ScheduleSpec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	spec, ok := m.schedules[id]
	return spec, ok
}

// Fire simulates a single cadence tick for id: if the schedule exists and is
// not paused, it starts spec.Workflow on the bound engine with a fresh
// workflow id and returns its handle without waiting for it to finish. A
// paused schedule returns a nil handle and a nil error. Tests use this
// instead of waiting on real cron timing.
func (m *ScheduleManager) Fire(ctx context.Context, id string) (engine.WorkflowHandle, error) {
	m.mu.Lock()
	spec, exists := m.schedules[id]
	m.mu.Unlock()
	if !exists {
		return nil, engine.ErrScheduleNotFound
	}
	if spec.Paused {
		return nil, nil
	}
	return m.engine.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:        fmt.Sprintf("%s-%d", spec.ID, m.nextRunSeq(spec.ID)),
		Workflow:  spec.Workflow,
		TaskQueue: spec.TaskQueue,
		Input:     spec.Input,
	})
}

func (m *ScheduleManager) nextRunSeq(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[id]++
	return m.counts[id]
}
