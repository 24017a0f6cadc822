package approval

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	commandToolName = "Bash"
	maxValueLength  = 50
)

// RenderDescription formats a tool call for the approver.
func RenderDescription(call *ToolCall) string {
	var sb strings.Builder
	if call.ToolName == commandToolName {
		fmt.Fprintf(&sb, "Execute command: `%s`\n*Reason:* %s",
			stringValue(call.Input["command"]), stringValue(call.Input["description"]))
	} else {
		sb.WriteString("*Tool:* ")
		sb.WriteString(call.ToolName)
		keys := make([]string, 0, len(call.Input))
		for key := range call.Input {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			value := call.Input[key]
			text := stringValue(value)
			if _, ok := value.(string); ok && len([]rune(text)) > maxValueLength {
				text = string([]rune(text)[:maxValueLength]) + "..."
			}
			fmt.Fprintf(&sb, "\n  • %s: %s", key, text)
		}
	}
	if call.Reason == "" {
		return sb.String()
	}
	return "*Reason:* " + call.Reason + "\n\n" + sb.String()
}

func stringValue(value interface{}) string {
	switch actual := value.(type) {
	case nil:
		return ""
	case string:
		return actual
	case fmt.Stringer:
		return actual.String()
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}
