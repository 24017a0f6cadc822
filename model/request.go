package model

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a Request. Pending is the only
// non-terminal state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s.IsTerminal()
}

// Decision is the human response to a request.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
)

// Status returns the terminal status a decision resolves a request to.
func (d Decision) Status() Status {
	if d == DecisionApproved {
		return StatusApproved
	}
	return StatusDenied
}

// Request represents one approval request.
type Request struct {
	ID               string     `json:"id"`            // short correlation id, primary key
	FullRequestID    string     `json:"fullRequestId"` // globally unique, unique index
	Description      string     `json:"description"`
	Requester        string     `json:"requester"`
	RecipientAddress string     `json:"recipientAddress"`
	Status           Status     `json:"status"`
	CreatedAt        time.Time  `json:"createdAt"`
	ExpiresAt        time.Time  `json:"expiresAt"`
	RespondedAt      *time.Time `json:"respondedAt,omitempty"`
	ResponseText     *string    `json:"responseText,omitempty"`
}

// IsExpired reports whether the validity window elapsed at now.
func (r *Request) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Resolve applies a terminal status. The caller is responsible for checking
// that the request is still pending and unexpired.
func (r *Request) Resolve(status Status, responseText string, respondedAt time.Time) {
	r.Status = status
	r.ResponseText = &responseText
	r.RespondedAt = &respondedAt
}

// Clone returns a deep copy so that stores never hand out shared pointers.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	ret := *r
	if r.RespondedAt != nil {
		at := *r.RespondedAt
		ret.RespondedAt = &at
	}
	if r.ResponseText != nil {
		text := *r.ResponseText
		ret.ResponseText = &text
	}
	return &ret
}

// ChannelPrefix is the address prefix the WhatsApp channel puts in front of
// phone numbers.
const ChannelPrefix = "whatsapp:"

// BareAddress strips the channel prefix from an address.
func BareAddress(address string) string {
	return strings.TrimPrefix(strings.TrimSpace(address), ChannelPrefix)
}

// ChannelAddress adds the channel prefix to an address when missing.
func ChannelAddress(address string) string {
	address = strings.TrimSpace(address)
	if address == "" || strings.HasPrefix(address, ChannelPrefix) {
		return address
	}
	return ChannelPrefix + address
}

// Confirmation is sent back to the responder after a decision was recorded.
type Confirmation struct {
	RequestID string   `json:"requestId"` // short correlation id
	Decision  Decision `json:"decision"`
	From      string   `json:"from"` // our channel address (inbound To)
	To        string   `json:"to"`   // responder address (inbound From)
}
