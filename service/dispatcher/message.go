package dispatcher

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/viant/approver/model"
)

// RequestBody renders the text fallback for a request notification.
func RequestBody(correlationID, description string, window time.Duration) string {
	var sb strings.Builder
	sb.WriteString("🔔 *Approval Request*\n\n")
	sb.WriteString(description)
	sb.WriteString("\n\n*Request ID:* `")
	sb.WriteString(correlationID)
	sb.WriteString("`\n\nReply:\n")
	fmt.Fprintf(&sb, "• *APPROVE %s*\n", correlationID)
	fmt.Fprintf(&sb, "• *DENY %s*\n\n", correlationID)
	sb.WriteString("⏱️ Expires in ")
	sb.WriteString(humanWindow(window))
	return strings.TrimSpace(sb.String())
}

// ContentVariables renders the template variables of a request notification.
func ContentVariables(correlationID, description string) (string, error) {
	data, err := json.Marshal(map[string]string{"1": description, "2": correlationID})
	if err != nil {
		return "", fmt.Errorf("failed to encode content variables: %w", err)
	}
	return string(data), nil
}

// ConfirmationBody renders the message sent after a decision.
func ConfirmationBody(c *model.Confirmation) string {
	if c.Decision == model.DecisionApproved {
		return fmt.Sprintf("✅ Request %s has been approved.", c.RequestID)
	}
	return fmt.Sprintf("❌ Request %s has been denied.", c.RequestID)
}

func humanWindow(window time.Duration) string {
	if window <= 0 {
		return "0 minutes"
	}
	if window < time.Minute {
		seconds := int(math.Ceil(window.Seconds()))
		return plural(seconds, "second")
	}
	minutes := int(math.Round(window.Minutes()))
	return plural(minutes, "minute")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
