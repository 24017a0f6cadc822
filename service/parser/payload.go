package parser

import (
	"net/url"
	"strings"
)

// Payload is an inbound channel callback. Field names follow the form keys
// Twilio posts to the webhook.
type Payload struct {
	From          string `json:"From,omitempty"`
	To            string `json:"To,omitempty"`
	Body          string `json:"Body,omitempty"`
	ButtonPayload string `json:"ButtonPayload,omitempty"`
	ButtonText    string `json:"ButtonText,omitempty"`
	ListID        string `json:"ListId,omitempty"`
	ListTitle     string `json:"ListTitle,omitempty"`
	MessageStatus string `json:"MessageStatus,omitempty"`
	MessageSid    string `json:"MessageSid,omitempty"`
}

// FromForm builds a Payload from decoded form values.
func FromForm(values url.Values) *Payload {
	return &Payload{
		From:          values.Get("From"),
		To:            values.Get("To"),
		Body:          values.Get("Body"),
		ButtonPayload: values.Get("ButtonPayload"),
		ButtonText:    values.Get("ButtonText"),
		ListID:        values.Get("ListId"),
		ListTitle:     values.Get("ListTitle"),
		MessageStatus: values.Get("MessageStatus"),
		MessageSid:    values.Get("MessageSid"),
	}
}

// IsStatusCallback reports whether the payload only reports delivery status.
func (p *Payload) IsStatusCallback() bool {
	return p.MessageStatus != "" &&
		strings.TrimSpace(p.Body) == "" &&
		p.ButtonPayload == "" &&
		p.ListID == ""
}
