// Package inmem provides an in-process engine.Engine implementation used by
// tests and local development. It runs workflows as plain goroutines over Go
// channels instead of a durable backend, so it does not survive process
// restarts and does not replay history — it exists to exercise workflow and
// activity code without a live Temporal server.
package inmem

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/goadesign/agentrun/engine"
	"github.com/goadesign/agentrun/telemetry"
)

// Engine is an in-memory engine.Engine. Safe for concurrent use.
type Engine struct {
	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	mu         sync.Mutex
	workflows  map[string]engine.WorkflowDefinition
	activities map[string]engine.ActivityDefinition
	runs       map[string]*run
}

// Options configures an in-memory engine.
type Options struct {
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

// New constructs an in-memory engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Engine{
		logger:     logger,
		metrics:    metrics,
		tracer:     tracer,
		workflows:  make(map[string]engine.WorkflowDefinition),
		activities: make(map[string]engine.ActivityDefinition),
		runs:       make(map[string]*run),
	}
}

type run struct {
	mu           sync.Mutex
	id           string
	done         chan struct{}
	result       any
	err          error
	signals      map[string]chan any
	queryHandler map[string]engine.QueryHandler
	cancel       context.CancelFunc
}

func (e *Engine) RegisterWorkflow(_ context.Context, def engine.WorkflowDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("inmem engine: workflow name cannot be empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.workflows[def.Name]; exists {
		return engine.ErrAlreadyRegistered
	}
	e.workflows[def.Name] = def
	return nil
}

func (e *Engine) RegisterActivity(_ context.Context, def engine.ActivityDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("inmem engine: activity name cannot be empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activities[def.Name] = def
	return nil
}

func (e *Engine) StartWorkflow(ctx context.Context, req engine.WorkflowStartRequest) (engine.WorkflowHandle, error) {
	e.mu.Lock()
	def, ok := e.workflows[req.Workflow]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("inmem engine: workflow %q is not registered", req.Workflow)
	}
	if _, exists := e.runs[req.ID]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("inmem engine: workflow id %q already running", req.ID)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		id:           req.ID,
		done:         make(chan struct{}),
		signals:      make(map[string]chan any),
		queryHandler: make(map[string]engine.QueryHandler),
		cancel:       cancel,
	}
	e.runs[req.ID] = r
	e.mu.Unlock()

	wfCtx := &workflowContext{
		engine:     e,
		ctx:        runCtx,
		workflowID: req.ID,
		runID:      req.ID,
		run:        r,
	}

	go func() {
		defer close(r.done)
		result, err := def.Handler(wfCtx, req.Input)
		r.mu.Lock()
		r.result, r.err = result, err
		r.mu.Unlock()
	}()

	return &handle{engine: e, run: r}, nil
}

func (e *Engine) signalChannel(r *run, name string) chan any {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.signals[name]
	if !ok {
		ch = make(chan any, 16)
		r.signals[name] = ch
	}
	return ch
}

func (e *Engine) lookupActivity(name string) (engine.ActivityDefinition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	def, ok := e.activities[name]
	return def, ok
}

type handle struct {
	engine *Engine
	run    *run
}

func (h *handle) Wait(ctx context.Context, result any) error {
	select {
	case <-h.run.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	h.run.mu.Lock()
	defer h.run.mu.Unlock()
	if h.run.err != nil {
		return h.run.err
	}
	return assign(result, h.run.result)
}

func (h *handle) Signal(_ context.Context, name string, payload any) error {
	select {
	case <-h.run.done:
		return engine.ErrWorkflowCompleted
	default:
	}
	ch := h.engine.signalChannel(h.run, name)
	select {
	case ch <- payload:
		return nil
	default:
		return fmt.Errorf("inmem engine: signal channel %q is full", name)
	}
}

func (h *handle) Cancel(_ context.Context) error {
	h.run.cancel()
	return nil
}

func (h *handle) Query(_ context.Context, queryType string, result any, args ...any) error {
	h.run.mu.Lock()
	handler, ok := h.run.queryHandler[queryType]
	h.run.mu.Unlock()
	if !ok {
		return fmt.Errorf("inmem engine: no query handler registered for %q", queryType)
	}
	v, err := handler(args...)
	if err != nil {
		return err
	}
	return assign(result, v)
}

func assign(dst, src any) error {
	if dst == nil || src == nil {
		return nil
	}
	if d, ok := dst.(*any); ok {
		*d = src
		return nil
	}
	return copyViaJSON(dst, src)
}

// copyViaJSON round-trips src through JSON into dst. This mirrors how a real
// durable engine serializes activity/workflow results across the wire, so
// in-memory tests exercise the same (de)serialization edge cases (e.g. a
// concrete struct losing its type if stored as `any`).
func copyViaJSON(dst, src any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("inmem engine: marshal result: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("inmem engine: unmarshal result: %w", err)
	}
	return nil
}
