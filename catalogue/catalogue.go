// Package catalogue abstracts agent/model/tool catalogue lookup (C1):
// resolving an agent_id to its configuration record, and enumerating the
// tools available on its configured tool servers.
package catalogue

import "context"

type (
	// Client resolves agent configuration and tool inventory.
	Client interface {
		// GetAgentConfig resolves agentID to its configuration record.
		// Returns ErrAgentNotFound if no such agent exists.
		GetAgentConfig(ctx context.Context, agentID string) (AgentConfig, error)

		// ListTools enumerates the tools available across the agent's
		// configured tool servers.
		ListTools(ctx context.Context, agentID string) ([]ToolDescriptor, error)
	}

	// AgentConfig is the catalogue record an agent resolves to.
	AgentConfig struct {
		ID           string
		Name         string
		Description  string
		Instruction  string
		ModelID      string
		ToolsConfig  map[string]any
		EventsConfig map[string]any
		// Planning holds optional planner configuration (e.g. a configured
		// max-iteration override); nil means "use request defaults".
		Planning map[string]any
	}

	// ToolDescriptor is one entry in the tool inventory returned by
	// discover_available_tools.
	ToolDescriptor struct {
		Name             string
		Description      string
		Parameters       map[string]any
		ServerInstanceID string
	}
)

// Valid reports whether cfg carries the minimum fields §4.6's initialize step
// requires ({id, name, model_id}); the AgentConfigInvalid error is raised by
// the caller when this returns false.
func (cfg AgentConfig) Valid() bool {
	return cfg.ID != "" && cfg.Name != "" && cfg.ModelID != ""
}

// Valid reports whether d carries the minimum fields a tool descriptor
// requires ({name, description}).
func (d ToolDescriptor) Valid() bool {
	return d.Name != "" && d.Description != ""
}
