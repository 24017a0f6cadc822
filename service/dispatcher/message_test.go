package dispatcher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/approver/model"
)

func TestRequestBody(t *testing.T) {
	body := RequestBody("abc12345", "*Tool:* Write", 5*time.Minute)
	expect := "🔔 *Approval Request*\n\n*Tool:* Write\n\n*Request ID:* `abc12345`\n\nReply:\n" +
		"• *APPROVE abc12345*\n• *DENY abc12345*\n\n⏱️ Expires in 5 minutes"
	assert.Equal(t, expect, body)
}

func TestHumanWindow(t *testing.T) {
	testCases := []struct {
		window time.Duration
		expect string
	}{
		{5 * time.Minute, "5 minutes"},
		{time.Minute, "1 minute"},
		{30 * time.Second, "30 seconds"},
		{0, "0 minutes"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expect, humanWindow(tc.window), tc.window.String())
	}
}

func TestContentVariables(t *testing.T) {
	encoded, err := ContentVariables("abc12345", "Execute command: `ls`")
	require.NoError(t, err)
	var actual map[string]string
	require.NoError(t, json.Unmarshal([]byte(encoded), &actual))
	assert.Equal(t, map[string]string{"1": "Execute command: `ls`", "2": "abc12345"}, actual)
}

func TestConfirmationBody(t *testing.T) {
	assert.Equal(t, "✅ Request abc12345 has been approved.",
		ConfirmationBody(&model.Confirmation{RequestID: "abc12345", Decision: model.DecisionApproved}))
	assert.Equal(t, "❌ Request abc12345 has been denied.",
		ConfirmationBody(&model.Confirmation{RequestID: "abc12345", Decision: model.DecisionDenied}))
}
