package runtime_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goadesign/agentrun/catalogue"
	"github.com/goadesign/agentrun/engine"
	"github.com/goadesign/agentrun/engine/inmem"
	"github.com/goadesign/agentrun/hooks"
	"github.com/goadesign/agentrun/mcptool"
	"github.com/goadesign/agentrun/memory"
	"github.com/goadesign/agentrun/message"
	"github.com/goadesign/agentrun/model"
	"github.com/goadesign/agentrun/runtime"
)

// fakeCatalogue resolves every agent id to the same fixed config and tool
// inventory, configurable per test.
type fakeCatalogue struct {
	cfg   catalogue.AgentConfig
	tools []catalogue.ToolDescriptor
}

func (f *fakeCatalogue) GetAgentConfig(context.Context, string) (catalogue.AgentConfig, error) {
	return f.cfg, nil
}

func (f *fakeCatalogue) ListTools(context.Context, string) ([]catalogue.ToolDescriptor, error) {
	return f.tools, nil
}

// fakeModel replays a fixed, ordered list of staged responses, one per call
// (the last entry repeats if more calls occur than responses staged).
// onCall, if set, runs synchronously before the n-th (1-indexed) response is
// returned, letting tests synchronize signal delivery against call ordering
// without relying on wall-clock timing.
type fakeModel struct {
	mu        sync.Mutex
	responses []model.Response
	calls     int
	onCall    func(n int)
}

func (f *fakeModel) Complete(_ context.Context, _ model.Request) (model.Response, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(n)
	}
	idx := n - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

// fakeTools replays a fixed, ordered list of staged tool responses.
type fakeTools struct {
	mu        sync.Mutex
	responses []mcptool.Response
	calls     int
}

func (f *fakeTools) CallTool(context.Context, mcptool.Request) (mcptool.Response, error) {
	f.mu.Lock()
	n := f.calls
	f.calls++
	f.mu.Unlock()
	if n >= len(f.responses) {
		n = len(f.responses) - 1
	}
	return f.responses[n], nil
}

func defaultCatalogue() *fakeCatalogue {
	return &fakeCatalogue{
		cfg: catalogue.AgentConfig{
			ID:          "agent-1",
			Name:        "Assistant",
			Description: "A helpful test agent",
			Instruction: "Answer the user's question.",
			ModelID:     "test-model",
		},
	}
}

// newTestEngine wires a fresh in-memory engine with the Agent Execution
// Workflow registered against the given fakes, and returns it alongside a
// thread-safe accessor for every event published during the run.
func newTestEngine(t *testing.T, model *fakeModel, tools *fakeTools, cat *fakeCatalogue) (*inmem.Engine, func() []hooks.Event) {
	t.Helper()
	var mu sync.Mutex
	var collected []hooks.Event
	publisher := hooks.PublisherFunc(func(events []hooks.Event) {
		mu.Lock()
		defer mu.Unlock()
		collected = append(collected, events...)
	})

	eng := inmem.New(inmem.Options{})
	rt := runtime.NewRuntime(&runtime.Activities{
		Catalogue: cat,
		Model:     model,
		Tools:     tools,
		Publisher: publisher,
	})
	require.NoError(t, rt.Register(context.Background(), eng))
	return eng, func() []hooks.Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]hooks.Event(nil), collected...)
	}
}

func completionCall(content, result string, cost float64) model.Response {
	return model.Response{
		Message: message.Message{
			Content: content,
			ToolCalls: []message.ToolCall{
				{Function: message.FunctionCall{Name: "completion", Arguments: `{"result":"` + result + `"}`}},
			},
		},
		Cost: cost,
	}
}

// S1: single iteration, immediate completion.
func TestAgentExecutionWorkflow_S1_ImmediateCompletion(t *testing.T) {
	fm := &fakeModel{responses: []model.Response{completionCall("The answer is 4", "4", 0.01)}}
	ft := &fakeTools{}
	eng, events := newTestEngine(t, fm, ft, defaultCatalogue())

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID:        "run-s1",
		Workflow:  runtime.WorkflowName,
		TaskQueue: runtime.TaskQueue,
		Input: runtime.AgentExecutionRequest{
			TaskID:                 "task-1",
			AgentID:                "agent-1",
			TaskQuery:              "2+2",
			MaxReasoningIterations: 3,
			BudgetUSD:              1.0,
		},
	})
	require.NoError(t, err)

	var result runtime.AgentExecutionResult
	require.NoError(t, handle.Wait(context.Background(), &result))

	assert.True(t, result.Success)
	assert.Equal(t, "4", result.FinalResponse)
	assert.Equal(t, 1, result.ReasoningIterationsUsed)

	// publish_workflow_events is fire-and-forget; give the async activity a
	// moment to land before asserting on the collected event stream.
	require.Eventually(t, func() bool { return len(events()) > 0 }, time.Second, time.Millisecond)
	seen := map[hooks.EventType]bool{}
	for _, e := range events() {
		seen[e.EventType] = true
		assert.False(t, e.EventType == hooks.ToolCallStarted, "completion must not dispatch a real tool call")
	}
	assert.True(t, seen[hooks.WorkflowStarted])
	assert.True(t, seen[hooks.IterationStarted])
	assert.True(t, seen[hooks.LLMCallCompleted])
	assert.True(t, seen[hooks.WorkflowCompleted])
}

// S2: three non-terminal iterations exhaust max_iterations without the
// completion sentinel; the run fails and falls back to the last assistant
// content.
func TestAgentExecutionWorkflow_S2_MaxIterationsExhausted(t *testing.T) {
	thinking := model.Response{Message: message.Message{Content: "thinking"}, Cost: 0.01}
	fm := &fakeModel{responses: []model.Response{thinking, thinking, thinking}}
	ft := &fakeTools{}
	eng, _ := newTestEngine(t, fm, ft, defaultCatalogue())

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID:        "run-s2",
		Workflow:  runtime.WorkflowName,
		TaskQueue: runtime.TaskQueue,
		Input: runtime.AgentExecutionRequest{
			TaskID:                 "task-2",
			AgentID:                "agent-1",
			TaskQuery:              "keep going",
			MaxReasoningIterations: 3,
			BudgetUSD:              1.0,
		},
	})
	require.NoError(t, err)

	var result runtime.AgentExecutionResult
	require.NoError(t, handle.Wait(context.Background(), &result))

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.ReasoningIterationsUsed)
	assert.Equal(t, "thinking", result.FinalResponse)
}

// S3: a single LLM call whose reported cost exceeds the budget fails the
// workflow with the full cost recorded.
func TestAgentExecutionWorkflow_S3_BudgetExceeded(t *testing.T) {
	fm := &fakeModel{responses: []model.Response{
		{Message: message.Message{Content: "Sure, let me look into that."}, Cost: 0.10},
	}}
	ft := &fakeTools{}
	eng, _ := newTestEngine(t, fm, ft, defaultCatalogue())

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID:        "run-s3",
		Workflow:  runtime.WorkflowName,
		TaskQueue: runtime.TaskQueue,
		Input: runtime.AgentExecutionRequest{
			TaskID:                 "task-3",
			AgentID:                "agent-1",
			TaskQuery:              "expensive task",
			MaxReasoningIterations: 5,
			BudgetUSD:              0.05,
		},
	})
	require.NoError(t, err)

	var result runtime.AgentExecutionResult
	require.NoError(t, handle.Wait(context.Background(), &result))

	assert.False(t, result.Success)
	assert.InDelta(t, 0.10, result.TotalCost, 0.0001)
	assert.NotEmpty(t, result.ErrorMessage)
}

// S4: a failed tool call is recorded as a tool message and does not prevent
// the run from completing successfully once the model signals completion.
func TestAgentExecutionWorkflow_S4_ToolFailureThenCompletion(t *testing.T) {
	fm := &fakeModel{responses: []model.Response{
		{
			Message: message.Message{ToolCalls: []message.ToolCall{
				{ID: "call_0", Function: message.FunctionCall{Name: "search", Arguments: `{"q":"x"}`}},
			}},
			Cost: 0.01,
		},
		completionCall("Done.", "done", 0.01),
	}}
	ft := &fakeTools{responses: []mcptool.Response{{Success: false, Result: "timeout"}}}
	cat := defaultCatalogue()
	cat.tools = []catalogue.ToolDescriptor{{Name: "search", Description: "Search the web"}}
	eng, _ := newTestEngine(t, fm, ft, cat)

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID:        "run-s4",
		Workflow:  runtime.WorkflowName,
		TaskQueue: runtime.TaskQueue,
		Input: runtime.AgentExecutionRequest{
			TaskID:                 "task-4",
			AgentID:                "agent-1",
			TaskQuery:              "search then finish",
			MaxReasoningIterations: 5,
			BudgetUSD:              1.0,
		},
	})
	require.NoError(t, err)

	var result runtime.AgentExecutionResult
	require.NoError(t, handle.Wait(context.Background(), &result))

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ReasoningIterationsUsed)
	found := false
	for _, m := range result.ConversationHistory {
		if m.Role == message.RoleTool && m.Content == "Tool execution failed: timeout" {
			found = true
		}
	}
	assert.True(t, found, "expected a tool message recording the failure")
}

// S5: a cancel signal delivered once the first iteration has fully
// completed stops the run before a second iteration starts.
func TestAgentExecutionWorkflow_S5_CancelAfterFirstIteration(t *testing.T) {
	call1Started := make(chan struct{})
	release1 := make(chan struct{})

	fm := &fakeModel{
		responses: []model.Response{
			{Message: message.Message{Content: "step 1 done"}, Cost: 0.01},
		},
		onCall: func(n int) {
			if n == 1 {
				close(call1Started)
				<-release1
			}
		},
	}
	ft := &fakeTools{}
	eng, _ := newTestEngine(t, fm, ft, defaultCatalogue())

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID:        "run-s5",
		Workflow:  runtime.WorkflowName,
		TaskQueue: runtime.TaskQueue,
		Input: runtime.AgentExecutionRequest{
			TaskID:                 "task-5",
			AgentID:                "agent-1",
			TaskQuery:              "long task",
			MaxReasoningIterations: 5,
			BudgetUSD:              1.0,
		},
	})
	require.NoError(t, err)

	go func() {
		<-call1Started
		_ = handle.Signal(context.Background(), runtime.SignalCancel, runtime.CancelSignal{Reason: "user abort"})
		close(release1)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var result runtime.AgentExecutionResult
	require.NoError(t, handle.Wait(ctx, &result))

	assert.Equal(t, 1, result.ReasoningIterationsUsed)
	assert.Contains(t, result.FinalResponse, "user abort")
	assert.Equal(t, 1, fm.calls)
}

// The conversation transcript is persisted to memory.Store as it accrues,
// exercising SPEC_FULL.md's transcript-persistence addition alongside the
// workflow's own event history.
func TestAgentExecutionWorkflow_PersistsTranscriptToMemoryStore(t *testing.T) {
	fm := &fakeModel{responses: []model.Response{
		{
			Message: message.Message{ToolCalls: []message.ToolCall{
				{ID: "call_0", Function: message.FunctionCall{Name: "search", Arguments: `{"q":"x"}`}},
			}},
			Cost: 0.01,
		},
		completionCall("Done.", "done", 0.01),
	}}
	ft := &fakeTools{responses: []mcptool.Response{{Success: true, Result: "found it"}}}
	cat := defaultCatalogue()
	cat.tools = []catalogue.ToolDescriptor{{Name: "search", Description: "Search the web"}}

	mem := memory.NewInMemoryStore()
	eng := inmem.New(inmem.Options{})
	rt := runtime.NewRuntime(&runtime.Activities{
		Catalogue: cat,
		Model:     fm,
		Tools:     ft,
		Publisher: hooks.PublisherFunc(func([]hooks.Event) {}),
		Memory:    mem,
	})
	require.NoError(t, rt.Register(context.Background(), eng))

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID:        "run-mem",
		Workflow:  runtime.WorkflowName,
		TaskQueue: runtime.TaskQueue,
		Input: runtime.AgentExecutionRequest{
			TaskID:                 "task-mem",
			AgentID:                "agent-1",
			TaskQuery:              "search then finish",
			MaxReasoningIterations: 5,
			BudgetUSD:              1.0,
		},
	})
	require.NoError(t, err)

	var result runtime.AgentExecutionResult
	require.NoError(t, handle.Wait(context.Background(), &result))
	require.True(t, result.Success)

	var snapshot memory.Snapshot
	require.Eventually(t, func() bool {
		s, err := mem.LoadRun(context.Background(), "agent-1", "task-mem")
		require.NoError(t, err)
		snapshot = s
		return len(snapshot.Events) > 0
	}, time.Second, time.Millisecond)

	var sawUserMessage, sawToolCall, sawToolResult, sawAssistantMessage bool
	for _, e := range snapshot.Events {
		switch e.Type {
		case memory.EventUserMessage:
			sawUserMessage = true
		case memory.EventToolCall:
			sawToolCall = true
			tc, ok := e.Data.(message.ToolCall)
			require.True(t, ok)
			assert.Equal(t, "search", tc.Function.Name)
		case memory.EventToolResult:
			sawToolResult = true
		case memory.EventAssistantMessage:
			sawAssistantMessage = true
		}
	}
	assert.True(t, sawUserMessage, "expected the initial goal message to be persisted")
	assert.True(t, sawToolCall, "expected the search tool call to be persisted")
	assert.True(t, sawToolResult, "expected the search tool result to be persisted")
	assert.True(t, sawAssistantMessage, "expected an assistant message to be persisted")
}

// Invariant 5: a tool-role message's ToolCallID must equal the id of a
// preceding assistant message's tool call, even when the LLM omits the id
// and ExtractToolCalls defaults it to call_<index>.
func TestAgentExecutionWorkflow_DefaultedToolCallIDMatchesStoredAssistantMessage(t *testing.T) {
	fm := &fakeModel{responses: []model.Response{
		{
			Message: message.Message{ToolCalls: []message.ToolCall{
				{Function: message.FunctionCall{Name: "search", Arguments: `{"q":"x"}`}},
			}},
			Cost: 0.01,
		},
		completionCall("Done.", "done", 0.01),
	}}
	ft := &fakeTools{responses: []mcptool.Response{{Success: true, Result: "found it"}}}
	cat := defaultCatalogue()
	cat.tools = []catalogue.ToolDescriptor{{Name: "search", Description: "Search the web"}}
	eng, _ := newTestEngine(t, fm, ft, cat)

	handle, err := eng.StartWorkflow(context.Background(), engine.WorkflowStartRequest{
		ID:        "run-invariant5",
		Workflow:  runtime.WorkflowName,
		TaskQueue: runtime.TaskQueue,
		Input: runtime.AgentExecutionRequest{
			TaskID:                 "task-invariant5",
			AgentID:                "agent-1",
			TaskQuery:              "search then finish",
			MaxReasoningIterations: 5,
			BudgetUSD:              1.0,
		},
	})
	require.NoError(t, err)

	var result runtime.AgentExecutionResult
	require.NoError(t, handle.Wait(context.Background(), &result))
	require.True(t, result.Success)

	var assistantToolCallIDs []string
	for _, m := range result.ConversationHistory {
		if m.Role == message.RoleAssistant {
			for _, tc := range m.ToolCalls {
				assistantToolCallIDs = append(assistantToolCallIDs, tc.ID)
			}
		}
	}
	require.NotEmpty(t, assistantToolCallIDs)

	for _, m := range result.ConversationHistory {
		if m.Role == message.RoleTool {
			assert.Contains(t, assistantToolCallIDs, m.ToolCallID)
		}
	}
}
