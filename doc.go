// Package approver provides a human-in-the-loop approval service for agent
// tool calls.
//
// A tool call is turned into a short-lived approval request, sent to a
// WhatsApp recipient through Twilio, and resolved by the recipient's reply
// delivered to the webhook. Callers block until the request is approved,
// denied, expires or the wait budget runs out:
//
//	srv, _ := approver.New(ctx, approver.DefaultConfig())
//	go srv.Start(ctx)
//	outcome := srv.Approvals().RequestApproval(ctx, &approval.ToolCall{ToolName: "Bash", Input: input})
//
// The service is also exposed as an MCP tool (permissions__approve) over
// stdio and HTTP. For more details see the individual sub-packages.
package approver
