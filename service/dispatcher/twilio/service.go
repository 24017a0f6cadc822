// Package twilio delivers approval notifications over WhatsApp.
package twilio

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	twilioclient "github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/viant/approver/model"
	"github.com/viant/approver/service/dispatcher"
)

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Service implements dispatcher.Service with the Twilio messages API.
type Service struct {
	config  Config
	creator messageCreator
	logger  zerolog.Logger
}

// Ensure Service implements dispatcher.Service
var _ dispatcher.Service = (*Service)(nil)

// Option customises the service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// withCreator replaces the REST client.
func withCreator(creator messageCreator) Option {
	return func(s *Service) { s.creator = creator }
}

// New creates a dispatcher. Without credentials every send fails with
// dispatcher.ErrNotConfigured.
func New(config Config, options ...Option) *Service {
	if config.From == "" {
		config.From = DefaultFrom
	}
	ret := &Service{config: config, logger: zerolog.Nop()}
	if config.Configured() {
		client := twilioclient.NewRestClientWithParams(twilioclient.ClientParams{
			Username: config.AccountSID,
			Password: config.AuthToken,
		})
		ret.creator = client.Api
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Configured reports whether messages can be sent.
func (s *Service) Configured() bool {
	return s.creator != nil
}

// Send delivers a request notification, as a content template when one is
// configured and as text otherwise.
func (s *Service) Send(ctx context.Context, recipient, correlationID, description string) (*dispatcher.Handle, error) {
	if s.creator == nil {
		return nil, dispatcher.ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(s.config.From)
	params.SetTo(model.ChannelAddress(recipient))
	if s.config.ContentSID != "" {
		variables, err := dispatcher.ContentVariables(correlationID, description)
		if err != nil {
			return nil, err
		}
		params.SetContentSid(s.config.ContentSID)
		params.SetContentVariables(variables)
	} else {
		params.SetBody(dispatcher.RequestBody(correlationID, description, s.config.ValidityWindow))
	}
	message, err := s.creator.CreateMessage(params)
	if err != nil {
		return nil, fmt.Errorf("failed to send approval request %s: %w", correlationID, err)
	}
	handle := &dispatcher.Handle{}
	if message != nil && message.Sid != nil {
		handle.MessageID = *message.Sid
	}
	s.logger.Debug().Str("requestId", correlationID).Str("messageSid", handle.MessageID).Msg("approval request sent")
	return handle, nil
}

// Confirm replies to the responder from the address they wrote to.
func (s *Service) Confirm(ctx context.Context, confirmation *model.Confirmation) error {
	if s.creator == nil {
		return dispatcher.ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	from := confirmation.From
	if from == "" {
		from = s.config.From
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(from)
	params.SetTo(model.ChannelAddress(confirmation.To))
	params.SetBody(dispatcher.ConfirmationBody(confirmation))
	if _, err := s.creator.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send confirmation for %s: %w", confirmation.RequestID, err)
	}
	return nil
}
