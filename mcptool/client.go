package mcptool

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/goadesign/agentrun/toolerrors"
)

// Client implements Caller over a live MCP client session, grounded on the
// teacher's HTTPCaller/StdioCaller pattern (connect once, call tools/call
// repeatedly) but using the official SDK transport instead of hand-rolled
// JSON-RPC framing.
type Client struct {
	session *mcpsdk.ClientSession
}

// Options configures a Client. Client does not dial its MCP server itself;
// it uses the session supplied here.
type Options struct {
	// Session is a pre-established client session, e.g. obtained via
	// mcpsdk.NewClient(...).Connect(ctx, transport).
	Session *mcpsdk.ClientSession
}

// New wraps an already-connected MCP client session as a Caller.
func New(opts Options) (*Client, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("mcptool: session is required")
	}
	return &Client{session: opts.Session}, nil
}

// CallTool invokes tools/call over the underlying session and normalizes the
// result into the §4.1 `{success, result}` contract. Transport-level failures
// (the server is unreachable, the call could not even be dispatched) are
// returned as a *toolerrors.ToolError; an error surfaced by the tool itself
// (the call was dispatched but the tool reported failure) comes back as
// Response{Success: false, ...} instead.
func (c *Client) CallTool(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      req.ToolName,
		Arguments: req.Arguments,
	})
	elapsed := time.Since(start)
	if err != nil {
		return Response{}, toolerrors.NewWithCause(fmt.Sprintf("mcp: call %s", req.ToolName), err)
	}
	text := contentToText(result)
	if result.IsError {
		return Response{Success: false, Result: text, ExecutionTime: elapsed}, nil
	}
	return Response{Success: true, Result: text, ExecutionTime: elapsed}, nil
}

func contentToText(result *mcpsdk.CallToolResult) string {
	var out string
	for i, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			if i > 0 {
				out += "\n"
			}
			out += tc.Text
		}
	}
	return out
}
