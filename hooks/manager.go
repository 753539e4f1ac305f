package hooks

// PublishMode selects how Manager hands events off to the publish activity.
type PublishMode int

const (
	// Immediate enqueues a fire-and-forget publish for each event as it is
	// added — the default for interactive progress UIs.
	Immediate PublishMode = iota
	// Batched accumulates events until Flush is called explicitly.
	Batched
)

// Publisher dispatches a batch of events to the external broker. The agent
// runtime wires this to PublishWorkflowEventsActivity via
// engine.WorkflowContext.ExecuteActivityAsync so publication never blocks the
// workflow beyond scheduling the activity.
type Publisher interface {
	Publish(events []Event)
}

// PublisherFunc adapts a plain function to the Publisher interface.
type PublisherFunc func(events []Event)

// Publish calls f.
func (f PublisherFunc) Publish(events []Event) { f(events) }

// Manager is the workflow-local event buffer (C4). It is not safe for
// concurrent use from outside the workflow coroutine — like
// AgentExecutionState, it is mutated only by workflow code.
type Manager struct {
	mode      PublishMode
	publisher Publisher
	pending   []Event
	history   []Event
}

// NewManager constructs a Manager. A nil publisher is valid; events are then
// buffered but never dispatched (useful for tests that only inspect history).
func NewManager(mode PublishMode, publisher Publisher) *Manager {
	return &Manager{mode: mode, publisher: publisher}
}

// AddEvent records an event. In Immediate mode it is dispatched to the
// publisher right away; in Batched mode it is accumulated until Flush.
func (m *Manager) AddEvent(e Event) {
	m.history = append(m.history, e)
	if m.mode == Immediate {
		m.dispatch([]Event{e})
		return
	}
	m.pending = append(m.pending, e)
}

// Flush dispatches any accumulated batched events and clears the pending
// buffer. A no-op in Immediate mode (nothing ever accumulates there).
func (m *Manager) Flush() {
	if len(m.pending) == 0 {
		return
	}
	batch := m.pending
	m.pending = nil
	m.dispatch(batch)
}

func (m *Manager) dispatch(events []Event) {
	if m.publisher == nil || len(events) == 0 {
		return
	}
	m.publisher.Publish(events)
}

// History returns every event recorded so far, in add order.
func (m *Manager) History() []Event {
	out := make([]Event, len(m.history))
	copy(out, m.history)
	return out
}

// Latest returns up to limit of the most recently recorded events, oldest
// first. limit <= 0 returns the full history.
func (m *Manager) Latest(limit int) []Event {
	if limit <= 0 || limit >= len(m.history) {
		return m.History()
	}
	out := make([]Event, limit)
	copy(out, m.history[len(m.history)-limit:])
	return out
}
