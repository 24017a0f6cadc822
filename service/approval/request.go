package approval

// ToolCall is the tool invocation a caller asks permission for.
type ToolCall struct {
	ToolName string                 `json:"tool_name"`
	Input    map[string]interface{} `json:"input,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
}
