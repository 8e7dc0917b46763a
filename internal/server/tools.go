package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	snapshotSchema := map[string]interface{}{
		"type":        "object",
		"description": "Diagram snapshot with nodes and edges arrays",
		"properties": map[string]interface{}{
			"nodes": map[string]interface{}{"type": "array"},
			"edges": map[string]interface{}{"type": "array"},
		},
	}

	return []Tool{
		{
			Name:        "diagram_extract",
			Description: "Extract a UML class diagram from an image. Returns positioned class nodes, relationship edges, and extraction metadata (confidence, method, engines used). Supplying existing_diagram merges the extraction into it: existing nodes win label collisions and new edges are rewired onto them.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"image": map[string]interface{}{
						"type":        "string",
						"description": "Base64-encoded PNG/JPEG/GIF, optionally with a data-URI prefix",
					},
					"identity": map[string]interface{}{
						"type":        "string",
						"description": "Caller identity token for rate limiting",
					},
					"existing_diagram": snapshotSchema,
					"use_cache": map[string]interface{}{
						"type":        "boolean",
						"description": "Reuse a cached extraction for an identical image. Default true",
						"default":     true,
					},
				},
				"required": []string{"image"},
			},
		},
		{
			Name:        "diagram_command",
			Description: "Convert a natural-language editing instruction (English or Spanish) into an incremental diagram delta against the supplied snapshot.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"instruction": map[string]interface{}{
						"type":        "string",
						"description": "The editing instruction, e.g. \"add attribute email (String) to class User\"",
					},
					"diagram_id": map[string]interface{}{
						"type":        "string",
						"description": "Opaque diagram identifier used for cache keying",
					},
					"snapshot": snapshotSchema,
					"identity": map[string]interface{}{
						"type":        "string",
						"description": "Caller identity token for rate limiting",
					},
					"use_cache": map[string]interface{}{
						"type":        "boolean",
						"description": "Reuse a cached delta for identical instruction+snapshot. Default true",
						"default":     true,
					},
				},
				"required": []string{"instruction"},
			},
		},
	}
}
