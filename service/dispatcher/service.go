// Package dispatcher defines how approval notifications reach a human.
package dispatcher

import (
	"context"
	"errors"

	"github.com/viant/approver/model"
)

// ErrNotConfigured is returned when the channel has no credentials.
var ErrNotConfigured = errors.New("notification channel not configured")

// Handle identifies a message accepted by the channel.
type Handle struct {
	MessageID string `json:"messageId,omitempty"`
}

// Service delivers approval requests and decision confirmations.
type Service interface {
	// Send notifies recipient about a pending request.
	Send(ctx context.Context, recipient, correlationID, description string) (*Handle, error)

	// Confirm tells the responder their decision was recorded.
	Confirm(ctx context.Context, confirmation *model.Confirmation) error
}
