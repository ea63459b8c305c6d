// CLAUDE:SUMMARY Registers the flowrec MCP tools: start/stop recording, status, build FlowMap, export, stored sessions.
package recorder

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/flowrec/kit"
)

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

func noArgs(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return &kit.MCPDecodeResult{}, nil
}

// RegisterMCP registers the recorder tools on an MCP server.
func (r *Recorder) RegisterMCP(srv *mcp.Server) {
	eps := r.endpoints()

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "flowrec_start_recording",
		Description: "Start a new recording. Discards the in-memory state of the previous session (already persisted) and opens a visit for every tab currently open.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, eps["start"], noArgs)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "flowrec_stop_recording",
		Description: "Stop the current recording and return the full raw session.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, eps["stop"], noArgs)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "flowrec_get_status",
		Description: "Return the recording flag, live counters and the current raw session.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, eps["status"], noArgs)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "flowrec_build_flowmap",
		Description: "Compile a raw session document into a FlowMap. Stateless: works on any previously exported session, independent of the live recording.",
		InputSchema: inputSchema(map[string]any{
			"raw":      map[string]any{"description": "Raw session document, as a JSON object or as pasted JSON text"},
			"raw_file": map[string]any{"type": "string", "description": "Name of the raw file, copied into the FlowMap header"},
		}, []string{"raw"}),
	}, eps["build_flowmap"], kit.DecodeArgs[buildRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "flowrec_export",
		Description: "Write the raw session, its FlowMap and a Markdown report into the export directory. Without id, exports the current session.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Stored session id (optional)"},
		}, nil),
	}, eps["export"], kit.DecodeArgs[sessionRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "flowrec_list_sessions",
		Description: "List stored sessions, most recent first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max results (default 50)"},
		}, nil),
	}, eps["sessions"], kit.DecodeArgs[sessionRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "flowrec_compile_session",
		Description: "Compile a stored session into a FlowMap.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Stored session id"},
		}, []string{"id"}),
	}, eps["compile_session"], kit.DecodeArgs[sessionRequest]())
}
