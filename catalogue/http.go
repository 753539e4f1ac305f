package catalogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrAgentNotFound is returned by Client.GetAgentConfig when the catalogue
// has no record for the given agent id.
var ErrAgentNotFound = errors.New("catalogue: agent not found")

// HTTPClient implements Client against a registry-style REST catalogue
// service, grounded on the teacher's generated registry client (plain
// net/http + encoding/json over GET /agents/{id}, no third-party HTTP
// library in that codegen's own import list either).
type HTTPClient struct {
	baseURL string
	hc      *http.Client
}

// HTTPClientOptions configures an HTTPClient.
type HTTPClientOptions struct {
	// BaseURL is the catalogue service root, e.g. "http://catalogue:8080".
	BaseURL string
	// Timeout bounds each HTTP round trip. Defaults to 5s.
	Timeout time.Duration
}

// NewHTTPClient constructs an HTTPClient.
func NewHTTPClient(opts HTTPClientOptions) (*HTTPClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("catalogue: base url is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		baseURL: opts.BaseURL,
		hc:      &http.Client{Timeout: timeout},
	}, nil
}

var _ Client = (*HTTPClient)(nil)

type agentConfigPayload struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Instruction  string         `json:"instruction"`
	ModelID      string         `json:"model_id"`
	ToolsConfig  map[string]any `json:"tools_config,omitempty"`
	EventsConfig map[string]any `json:"events_config,omitempty"`
	Planning     map[string]any `json:"planning,omitempty"`
}

// GetAgentConfig implements Client.
func (c *HTTPClient) GetAgentConfig(ctx context.Context, agentID string) (AgentConfig, error) {
	var payload agentConfigPayload
	if err := c.getJSON(ctx, fmt.Sprintf("/agents/%s", url.PathEscape(agentID)), &payload); err != nil {
		return AgentConfig{}, err
	}
	return AgentConfig{
		ID:           payload.ID,
		Name:         payload.Name,
		Description:  payload.Description,
		Instruction:  payload.Instruction,
		ModelID:      payload.ModelID,
		ToolsConfig:  payload.ToolsConfig,
		EventsConfig: payload.EventsConfig,
		Planning:     payload.Planning,
	}, nil
}

// ListTools implements Client.
func (c *HTTPClient) ListTools(ctx context.Context, agentID string) ([]ToolDescriptor, error) {
	var payload struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/agents/%s/tools", url.PathEscape(agentID)), &payload); err != nil {
		return nil, err
	}
	return payload.Tools, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("catalogue: build request: %w", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("catalogue: request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrAgentNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalogue: %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("catalogue: decode response from %s: %w", path, err)
	}
	return nil
}
