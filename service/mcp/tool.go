package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/viant/approver/service/approval"
)

// ToolName is the tool the agent calls before running a guarded tool.
const ToolName = "permissions__approve"

const deniedMessage = "Request was denied"

var toolDefinition = map[string]interface{}{
	"name":        ToolName,
	"description": "Request approval via WhatsApp before executing a tool.",
	"inputSchema": map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tool_name": map[string]interface{}{"type": "string"},
			"input":     map[string]interface{}{"type": "object"},
			"reason":    map[string]interface{}{"type": "string", "default": ""},
		},
		"required": []string{"tool_name", "input"},
	},
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func decodeToolCall(raw json.RawMessage) (*approval.ToolCall, error) {
	var call approval.ToolCall
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing arguments")
	}
	if err := json.Unmarshal(raw, &call); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if call.ToolName == "" {
		return nil, fmt.Errorf("tool_name is required")
	}
	return &call, nil
}

// ToolResult renders an outcome as the tool payload.
func ToolResult(outcome *approval.Outcome) map[string]interface{} {
	switch outcome.Kind {
	case approval.OutcomeApproved:
		return map[string]interface{}{"approved": true}
	case approval.OutcomeDenied:
		return map[string]interface{}{"denied": true, "message": deniedMessage}
	}
	return map[string]interface{}{"error": outcome.Reason}
}
