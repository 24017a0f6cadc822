package approval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderDescription(t *testing.T) {
	long := strings.Repeat("x", 60)
	testCases := []struct {
		name   string
		call   *ToolCall
		expect string
	}{
		{
			name:   "command",
			call:   &ToolCall{ToolName: "Bash", Input: map[string]interface{}{"command": "rm -rf build", "description": "clean"}},
			expect: "Execute command: `rm -rf build`\n*Reason:* clean",
		},
		{
			name: "tool with sorted truncated fields",
			call: &ToolCall{ToolName: "Write", Input: map[string]interface{}{
				"file_path": "/tmp/a.txt",
				"content":   long,
				"append":    true,
			}},
			expect: "*Tool:* Write\n  • append: true\n  • content: " + strings.Repeat("x", 50) + "...\n  • file_path: /tmp/a.txt",
		},
		{
			name:   "tool without input",
			call:   &ToolCall{ToolName: "WebSearch"},
			expect: "*Tool:* WebSearch",
		},
		{
			name:   "reason prefix",
			call:   &ToolCall{ToolName: "Bash", Input: map[string]interface{}{"command": "ls"}, Reason: "inspect"},
			expect: "*Reason:* inspect\n\nExecute command: `ls`\n*Reason:* ",
		},
		{
			name:   "structured values",
			call:   &ToolCall{ToolName: "Edit", Input: map[string]interface{}{"edits": []interface{}{map[string]interface{}{"old": "a"}}}},
			expect: "*Tool:* Edit\n  • edits: [{\"old\":\"a\"}]",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, RenderDescription(tc.call))
		})
	}
}
