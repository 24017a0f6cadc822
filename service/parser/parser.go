// Package parser decodes inbound channel callbacks into approval decisions.
//
// Three reply shapes are understood, in order of precedence:
//
//	button selection   ButtonPayload = "<action>_<id>"
//	list selection     ListId        = "<action>:<id>"
//	free text          Body          = "APPROVE <id>" | "DENY <id>"
//
// Actions are matched case-insensitively; correlation ids are lower-cased and
// must be 8 hexadecimal characters.
package parser

import (
	"strings"

	"github.com/viant/parsly"

	"github.com/viant/approver/internal/idgen"
	"github.com/viant/approver/model"
)

const (
	ButtonDelimiter = "_"
	ListDelimiter   = ":"

	ActionApprove = "approve"
	ActionDeny    = "deny"
)

// Result is a decoded decision attempt.
type Result struct {
	CorrelationID string
	Decision      model.Decision
	RawText       string
}

// Parse decodes the payload. Status callbacks are reported with
// ErrStatusCallback; sender presence is checked by the caller.
func Parse(p *Payload) (*Result, error) {
	if p == nil {
		return nil, ErrMalformedPayload
	}
	if p.IsStatusCallback() {
		return nil, ErrStatusCallback
	}
	if p.ButtonPayload != "" {
		raw := p.ButtonText
		if raw == "" {
			raw = p.ButtonPayload
		}
		return parseStructured(p.ButtonPayload, ButtonDelimiter, raw)
	}
	if p.ListID != "" {
		return parseStructured(p.ListID, ListDelimiter, p.ListID)
	}
	return parseText(p.Body)
}

// Encode renders action and id in the given structured shape.
func Encode(action, id, delimiter string) string {
	return action + delimiter + id
}

func parseStructured(value, delimiter, raw string) (*Result, error) {
	value = strings.TrimSpace(value)
	if strings.Count(value, delimiter) != 1 {
		return nil, ErrMalformedPayload
	}
	action, id, _ := strings.Cut(value, delimiter)
	if action == "" || id == "" {
		return nil, ErrMalformedPayload
	}
	decision, err := decisionOf(action)
	if err != nil {
		return nil, err
	}
	return newResult(id, decision, raw)
}

func parseText(body string) (*Result, error) {
	text := strings.TrimSpace(body)
	if text == "" {
		return nil, ErrEmptyBody
	}
	cursor := parsly.NewCursor("", []byte(text), 0)

	matched := cursor.MatchAfterOptional(whitespaceToken, wordToken)
	if matched.Code != wordCode {
		return nil, ErrEmptyBody
	}
	decision, err := decisionOf(matched.Text(cursor))
	if err != nil {
		return nil, err
	}

	matched = cursor.MatchAfterOptional(whitespaceToken, wordToken)
	if matched.Code != wordCode {
		return nil, ErrMalformedPayload
	}
	id := matched.Text(cursor)

	if cursor.MatchAfterOptional(whitespaceToken, wordToken).Code == wordCode {
		return nil, ErrMalformedPayload
	}
	return newResult(id, decision, text)
}

func newResult(id string, decision model.Decision, raw string) (*Result, error) {
	id = normalizeID(id)
	if !idgen.IsShort(id) {
		return nil, ErrMalformedPayload
	}
	return &Result{CorrelationID: id, Decision: decision, RawText: raw}, nil
}

func decisionOf(action string) (model.Decision, error) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case ActionApprove:
		return model.DecisionApproved, nil
	case ActionDeny:
		return model.DecisionDenied, nil
	}
	return "", ErrUnknownAction
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
