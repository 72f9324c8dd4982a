package replica

import (
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/treemirror/kit"
)

// RegisterMCP registers the replica read tools on an MCP server.
func (r *Replica) RegisterMCP(srv *mcp.Server) {
	r.registerTool(srv, &mcp.Tool{
		Name:        "replica_sessions",
		Description: "List mirrored documents with their last sequence number and gap count.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, sessionsEndpoint(r), func(*mcp.CallToolRequest) (any, error) {
		return &sessionsRequest{}, nil
	})

	r.registerTool(srv, &mcp.Tool{
		Name:        "replica_state",
		Description: "Return the reconstructed records of a mirrored document.",
		InputSchema: inputSchema(map[string]any{
			"session": map[string]any{"type": "string", "description": "Session ID"},
		}, []string{"session"}),
	}, stateEndpoint(r), decodeSession)

	r.registerTool(srv, &mcp.Tool{
		Name:        "replica_markdown",
		Description: "Render a mirrored document as Markdown.",
		InputSchema: inputSchema(map[string]any{
			"session": map[string]any{"type": "string", "description": "Session ID"},
		}, []string{"session"}),
	}, markdownEndpoint(r), decodeSession)

	r.registerTool(srv, &mcp.Tool{
		Name:        "replica_patches",
		Description: "List the logged patches of a mirrored document, in sequence order.",
		InputSchema: inputSchema(map[string]any{
			"session": map[string]any{"type": "string", "description": "Session ID"},
			"after":   map[string]any{"type": "integer", "description": "Only patches with a greater seq"},
			"limit":   map[string]any{"type": "integer", "description": "Max results (default 100)"},
		}, []string{"session"}),
	}, patchesEndpoint(r), func(req *mcp.CallToolRequest) (any, error) {
		var pr patchesRequest
		if err := json.Unmarshal(req.Params.Arguments, &pr); err != nil {
			return nil, err
		}
		if pr.ID == "" {
			return nil, errMissingSession
		}
		return &pr, nil
	})
}

var errMissingSession = errors.New("session is required")

func decodeSession(req *mcp.CallToolRequest) (any, error) {
	var sr sessionRequest
	if err := json.Unmarshal(req.Params.Arguments, &sr); err != nil {
		return nil, err
	}
	if sr.ID == "" {
		return nil, errMissingSession
	}
	return &sr, nil
}

func (r *Replica) registerTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode func(*mcp.CallToolRequest) (any, error)) {
	endpoint = kit.Chain(kit.Logging(r.logger, tool.Name))(endpoint)
	kit.RegisterMCPTool(srv, tool, endpoint, func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		v, err := decode(req)
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: v}, nil
	})
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
