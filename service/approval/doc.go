// Package approval implements the human-in-the-loop approval lifecycle.
//
// RequestApproval records a pending request, notifies the approver and blocks
// until the request is decided, expires, or the wait budget runs out.
// HandleWebhook applies an inbound reply to the matching pending request.
// The two sides only meet through the request store: the webhook resolves a
// request with a compare-and-swap update and the waiting side observes the
// new status on its next poll.
package approval
