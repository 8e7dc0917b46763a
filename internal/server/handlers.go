package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openboard/umlvision/internal/command"
	"github.com/openboard/umlvision/internal/faults"
	"github.com/openboard/umlvision/internal/model"
	"github.com/openboard/umlvision/internal/pipeline"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke.
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified
// tool. The response wraps the tool result in MCP's content format:
//
//	{"content": [{"type": "text", "text": "<JSON result>"}]}
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return s.faultResponse(req.ID, err)
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "diagram_extract":
		return s.handleDiagramExtract(ctx, args)
	case "diagram_command":
		return s.handleDiagramCommand(ctx, args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

type extractArgs struct {
	Image           string                 `json:"image"`
	Identity        string                 `json:"identity"`
	ExistingDiagram *model.DiagramSnapshot `json:"existing_diagram"`
	UseCache        *bool                  `json:"use_cache"`
}

func (s *Server) handleDiagramExtract(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a extractArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, faults.InvalidInput("bad arguments: %v", err)
	}
	useCache := true
	if a.UseCache != nil {
		useCache = *a.UseCache
	}
	return s.extractor.Extract(ctx, pipeline.Request{
		Payload:  a.Image,
		Identity: a.Identity,
		Existing: a.ExistingDiagram,
		UseCache: useCache,
	})
}

type commandArgs struct {
	Instruction string                 `json:"instruction"`
	DiagramID   string                 `json:"diagram_id"`
	Snapshot    *model.DiagramSnapshot `json:"snapshot"`
	Identity    string                 `json:"identity"`
	UseCache    *bool                  `json:"use_cache"`
}

func (s *Server) handleDiagramCommand(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a commandArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, faults.InvalidInput("bad arguments: %v", err)
	}
	useCache := true
	if a.UseCache != nil {
		useCache = *a.UseCache
	}
	return s.processor.Process(ctx, command.Request{
		Instruction: a.Instruction,
		DiagramID:   a.DiagramID,
		Snapshot:    a.Snapshot,
		Identity:    a.Identity,
		UseCache:    useCache,
	})
}

// faultResponse maps the error taxonomy onto JSON-RPC error codes so
// clients can distinguish bad input from service conditions.
func (s *Server) faultResponse(id interface{}, err error) *MCPResponse {
	if retry, ok := faults.IsRateLimited(err); ok {
		resp := s.errorResponse(id, -32000, "Rate limit exceeded", err.Error())
		resp.Error.Data = map[string]interface{}{
			"retry_after_seconds": retry,
		}
		return resp
	}
	switch {
	case errors.Is(err, faults.ErrInvalidInput):
		return s.errorResponse(id, -32602, "Invalid input", err.Error())
	case errors.Is(err, faults.ErrEngineUnavailable):
		return s.errorResponse(id, -32001, "Recognition backend unavailable", err.Error())
	case errors.Is(err, faults.ErrNoStructure):
		return s.errorResponse(id, -32002, "No UML structure detected", err.Error())
	case errors.Is(err, faults.ErrReferenceNotFound):
		return s.errorResponse(id, -32003, "Referenced element not found", err.Error())
	case errors.Is(err, faults.ErrCommandNotRecognized):
		return s.errorResponse(id, -32004, "Command not recognized", err.Error())
	}
	return s.errorResponse(id, -32000, "Tool execution failed", err.Error())
}

// mustMarshalJSON marshals v for embedding in a content block. Marshal
// failures surface as a JSON error string rather than a panic.
func mustMarshalJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "failed to marshal result: %v"}`, err)
	}
	return string(data)
}
