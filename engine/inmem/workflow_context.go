package inmem

import (
	"context"
	"fmt"
	"time"

	"github.com/goadesign/agentrun/engine"
	"github.com/goadesign/agentrun/telemetry"
)

type workflowContext struct {
	engine     *Engine
	ctx        context.Context
	workflowID string
	runID      string
	run        *run
}

func (w *workflowContext) Context() context.Context { return w.ctx }
func (w *workflowContext) WorkflowID() string        { return w.workflowID }
func (w *workflowContext) RunID() string             { return w.runID }
func (w *workflowContext) Logger() telemetry.Logger  { return w.engine.logger }
func (w *workflowContext) Metrics() telemetry.Metrics { return w.engine.metrics }
func (w *workflowContext) Tracer() telemetry.Tracer  { return w.engine.tracer }
func (w *workflowContext) Now() time.Time            { return time.Now() }

func (w *workflowContext) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *workflowContext) ExecuteActivity(ctx context.Context, req engine.ActivityRequest, result any) error {
	fut, err := w.ExecuteActivityAsync(ctx, req)
	if err != nil {
		return err
	}
	return fut.Get(ctx, result)
}

func (w *workflowContext) ExecuteActivityAsync(ctx context.Context, req engine.ActivityRequest) (engine.Future, error) {
	def, ok := w.engine.lookupActivity(req.Name)
	if !ok {
		return nil, fmt.Errorf("inmem engine: activity %q is not registered", req.Name)
	}
	resultCh := make(chan activityResult, 1)
	go func() {
		v, err := def.Handler(ctx, req.Input)
		resultCh <- activityResult{value: v, err: err}
	}()
	return &future{resultCh: resultCh}, nil
}

func (w *workflowContext) SignalChannel(name string) engine.SignalChannel {
	return &signalChannel{ch: w.engine.signalChannel(w.run, name)}
}

// SetQueryHandler registers a query handler, satisfying engine.QueryRegistrar.
func (w *workflowContext) SetQueryHandler(queryType string, handler engine.QueryHandler) error {
	w.run.mu.Lock()
	defer w.run.mu.Unlock()
	w.run.queryHandler[queryType] = handler
	return nil
}

type activityResult struct {
	value any
	err   error
}

type future struct {
	resultCh chan activityResult
	cached   *activityResult
}

func (f *future) Get(ctx context.Context, result any) error {
	if f.cached == nil {
		select {
		case r := <-f.resultCh:
			f.cached = &r
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.cached.err != nil {
		return f.cached.err
	}
	return assign(result, f.cached.value)
}

func (f *future) IsReady() bool {
	if f.cached != nil {
		return true
	}
	select {
	case r := <-f.resultCh:
		f.cached = &r
		return true
	default:
		return false
	}
}

type signalChannel struct {
	ch chan any
}

func (s *signalChannel) Receive(ctx context.Context, dest any) error {
	select {
	case v := <-s.ch:
		return assign(dest, v)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *signalChannel) ReceiveAsync(dest any) bool {
	select {
	case v := <-s.ch:
		return assign(dest, v) == nil
	default:
		return false
	}
}
