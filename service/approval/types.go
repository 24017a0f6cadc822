package approval

import (
	"time"

	"github.com/viant/approver/model"
)

// OutcomeKind is the terminal result of a RequestApproval call.
type OutcomeKind string

const (
	OutcomeApproved OutcomeKind = "approved"
	OutcomeDenied   OutcomeKind = "denied"
	OutcomeError    OutcomeKind = "error"
)

// Outcome is returned to the caller that asked for approval.
type Outcome struct {
	Kind      OutcomeKind `json:"kind"`
	RequestID string      `json:"requestId,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Err       error       `json:"-"`
	// Waited is how long the caller blocked for the decision.
	Waited time.Duration `json:"-"`
}

// Approved returns an approved outcome.
func Approved(requestID string) *Outcome {
	return &Outcome{Kind: OutcomeApproved, RequestID: requestID}
}

// Denied returns a denied outcome.
func Denied(requestID string) *Outcome {
	return &Outcome{Kind: OutcomeDenied, RequestID: requestID}
}

// Failed returns an error outcome; err carries the cause when known.
func Failed(requestID string, err error) *Outcome {
	return &Outcome{Kind: OutcomeError, RequestID: requestID, Reason: reasonOf(err), Err: err}
}

// IsApproved reports whether the tool call may proceed.
func (o *Outcome) IsApproved() bool {
	return o != nil && o.Kind == OutcomeApproved
}

func (o *Outcome) label() string {
	if o.Kind != OutcomeError {
		return string(o.Kind)
	}
	for _, candidate := range reasons {
		if o.Reason == candidate.Error() {
			return o.Reason
		}
	}
	return string(OutcomeError)
}

func outcomeOf(requestID string, status model.Status) *Outcome {
	if status == model.StatusApproved {
		return Approved(requestID)
	}
	return Denied(requestID)
}

// Webhook result statuses.
const (
	WebhookSuccess = "success"
	WebhookError   = "error"
	WebhookIgnored = "ignored"
)

// WebhookResult is the JSON answer given to the channel callback.
type WebhookResult struct {
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Response  string `json:"response,omitempty"`
}

// Succeeded reports a recorded decision.
func Succeeded(fullRequestID string, decision model.Decision) *WebhookResult {
	return &WebhookResult{Status: WebhookSuccess, RequestID: fullRequestID, Response: string(decision)}
}

// Ignored reports a callback that carries no decision attempt.
func Ignored(reason string) *WebhookResult {
	return &WebhookResult{Status: WebhookIgnored, Reason: reason}
}

// Errored reports a decision attempt that could not be applied.
func Errored(reason string) *WebhookResult {
	return &WebhookResult{Status: WebhookError, Reason: reason}
}
