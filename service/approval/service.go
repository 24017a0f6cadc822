package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/viant/approver/internal/clock"
	"github.com/viant/approver/internal/idgen"
	"github.com/viant/approver/internal/metrics"
	"github.com/viant/approver/model"
	"github.com/viant/approver/policy"
	"github.com/viant/approver/service/dao"
	"github.com/viant/approver/service/dispatcher"
	"github.com/viant/approver/service/messaging"
	"github.com/viant/approver/service/parser"
	"github.com/viant/approver/tracing"
)

// maxIDAttempts bounds short id regeneration on collision.
const maxIDAttempts = 3

// Service is the approval lifecycle manager.
type Service struct {
	config     Config
	store      dao.RequestService
	dispatcher dispatcher.Service
	outbox     messaging.Queue[model.Confirmation]
	logger     zerolog.Logger
	now        func() time.Time
	after      func(d time.Duration) <-chan time.Time
}

// New creates a lifecycle manager over store and dispatcher.
func New(store dao.RequestService, dispatcher dispatcher.Service, options ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("request store is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	ret := &Service{
		config:     DefaultConfig(),
		store:      store,
		dispatcher: dispatcher,
		logger:     zerolog.Nop(),
		now:        clock.Now,
		after:      time.After,
	}
	for _, option := range options {
		option(ret)
	}
	if err := ret.config.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.config
}

// Configured reports whether requests can be delivered.
func (s *Service) Configured() bool {
	if s.config.Recipient == "" {
		return false
	}
	if checker, ok := s.dispatcher.(interface{ Configured() bool }); ok {
		return checker.Configured()
	}
	return true
}

// RequestApproval asks the configured recipient to approve call and blocks
// until the request is decided, expires or the wait budget is spent.
func (s *Service) RequestApproval(ctx context.Context, call *ToolCall) (outcome *Outcome) {
	ctx, span := tracing.StartSpan(ctx, "approval.RequestApproval", "INTERNAL")
	span.WithAttributes(map[string]string{"tool.name": call.ToolName})
	defer func() {
		tracing.EndSpan(span, outcome.Err)
		metrics.RecordOutcome(outcome.label(), outcome.Waited)
	}()
	metrics.RecordRequest()

	switch s.policyFor(ctx).Decide(call.ToolName) {
	case policy.Approve:
		s.logger.Info().Str("tool", call.ToolName).Msg("approved by policy")
		return Approved("")
	case policy.Deny:
		s.logger.Info().Str("tool", call.ToolName).Msg("denied by policy")
		return Denied("")
	}

	description := RenderDescription(call)
	s.logger.Info().Str("tool", call.ToolName).Msg("approval requested")
	if !s.Configured() {
		s.logger.Error().Bool("recipient", s.config.Recipient != "").Msg("approval channel not configured")
		return Failed("", ErrNotConfigured)
	}

	request, err := s.create(ctx, description)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to record approval request")
		return Failed("", err)
	}
	span.WithAttributes(map[string]string{"request.id": request.ID})
	logger := s.logger.With().Str("requestId", request.ID).Logger()

	handle, err := s.dispatcher.Send(ctx, request.RecipientAddress, request.ID, description)
	if err != nil {
		if dErr := s.store.Delete(context.WithoutCancel(ctx), request.ID); dErr != nil {
			logger.Error().Err(dErr).Msg("failed to roll back approval request")
		}
		logger.Error().Err(err).Msg("approval notification failed, request rolled back")
		if errors.Is(err, dispatcher.ErrNotConfigured) {
			return Failed(request.ID, ErrNotConfigured)
		}
		return Failed(request.ID, fmt.Errorf("%w: %v", ErrSendFailed, err))
	}
	event := logger.Info().Str("recipient", request.RecipientAddress)
	if handle != nil {
		event = event.Str("messageId", handle.MessageID)
	}
	event.Msg("approval request sent")

	return s.WaitForDecision(ctx, request.ID)
}

// policyFor returns the policy embedded in ctx or the configured one.
func (s *Service) policyFor(ctx context.Context) *policy.Policy {
	if p := policy.FromContext(ctx); p != nil {
		return p
	}
	return &s.config.Policy
}

func (s *Service) create(ctx context.Context, description string) (*model.Request, error) {
	var lastErr error
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		fullID, shortID := idgen.Pair()
		createdAt := s.now()
		request := &model.Request{
			ID:               shortID,
			FullRequestID:    fullID,
			Description:      description,
			Requester:        s.config.Requester,
			RecipientAddress: model.BareAddress(s.config.Recipient),
			Status:           model.StatusPending,
			CreatedAt:        createdAt,
			ExpiresAt:        createdAt.Add(s.config.ValidityWindow),
		}
		lastErr = s.store.Create(ctx, request)
		if lastErr == nil {
			return request, nil
		}
		if !errors.Is(lastErr, dao.ErrDuplicateID) {
			return nil, lastErr
		}
		s.logger.Warn().Str("requestId", shortID).Msg("correlation id collision, regenerating")
	}
	return nil, fmt.Errorf("failed to allocate a unique request id: %w", lastErr)
}

// WaitForDecision polls the store until request id leaves pending, expires,
// the wait budget elapses or ctx is done.
func (s *Service) WaitForDecision(ctx context.Context, id string) *Outcome {
	start := s.now()
	outcome := s.poll(ctx, id, start)
	outcome.Waited = s.now().Sub(start)
	return outcome
}

func (s *Service) poll(ctx context.Context, id string, start time.Time) *Outcome {
	logger := s.logger.With().Str("requestId", id).Logger()
	for {
		// expiry is judged at the read time: a decision recorded after the
		// read was accepted before expiry and shows up on the next read
		readAt := s.now()
		request, err := s.store.Load(ctx, id)
		switch {
		case err == nil:
			if request.Status.IsTerminal() {
				logger.Info().Str("status", string(request.Status)).Dur("waited", s.now().Sub(start)).Msg("approval decided")
				return outcomeOf(id, request.Status)
			}
			if request.IsExpired(readAt) {
				logger.Warn().Msg("approval request expired")
				return Failed(id, ErrExpired)
			}
		case errors.Is(err, dao.ErrNotFound):
			logger.Error().Msg("approval request vanished while waiting")
			return Failed(id, ErrNotFound)
		case ctx.Err() != nil:
			return Failed(id, ErrCancelled)
		default:
			logger.Warn().Err(err).Msg("failed to read approval request, retrying")
		}

		if s.now().Sub(start) > s.config.WaitBudget {
			logger.Warn().Msg("approval wait timed out")
			return Failed(id, ErrTimedOut)
		}
		select {
		case <-ctx.Done():
			logger.Info().Msg("approval wait cancelled")
			return Failed(id, ErrCancelled)
		case <-s.after(s.config.PollInterval):
		}
	}
}

// HandleWebhook applies an inbound reply. It never fails: every problem is
// reported through the returned result.
func (s *Service) HandleWebhook(ctx context.Context, payload *parser.Payload) (result *WebhookResult) {
	ctx, span := tracing.StartSpan(ctx, "approval.HandleWebhook", "SERVER")
	defer func() {
		span.WithAttributes(map[string]string{"webhook.status": result.Status, "webhook.reason": result.Reason})
		tracing.EndSpan(span, nil)
		metrics.RecordWebhook(result.Status, result.Reason)
	}()

	if payload == nil {
		return Ignored(parser.ErrMalformedPayload.Error())
	}
	if payload.IsStatusCallback() {
		s.logger.Debug().Str("messageSid", payload.MessageSid).Str("messageStatus", payload.MessageStatus).Msg("status callback ignored")
		return Ignored(parser.ErrStatusCallback.Error())
	}
	if payload.From == "" {
		return Errored("missing From field")
	}
	parsed, err := parser.Parse(payload)
	if err != nil {
		s.logger.Info().Err(err).Str("from", payload.From).Msg("reply ignored")
		return Ignored(err.Error())
	}
	sender := model.BareAddress(payload.From)
	logger := s.logger.With().Str("requestId", parsed.CorrelationID).Str("from", sender).Logger()
	span.WithAttributes(map[string]string{"request.id": parsed.CorrelationID})

	request, err := s.store.FindPending(ctx, parsed.CorrelationID, sender)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			logger.Warn().Msg("reply for unknown request")
			return Errored(ErrNotFound.Error())
		}
		logger.Error().Err(err).Msg("failed to look up request")
		return Errored("internal error")
	}

	err = s.store.UpdateStatus(ctx, request.ID, parsed.Decision.Status(), parsed.RawText, s.now())
	switch {
	case err == nil:
	case errors.Is(err, dao.ErrAlreadyResolved):
		logger.Info().Msg("request already processed")
		return Errored("already processed")
	case errors.Is(err, dao.ErrExpired):
		logger.Info().Msg("reply after expiry")
		return Errored(ErrExpired.Error())
	case errors.Is(err, dao.ErrNotFound):
		return Errored(ErrNotFound.Error())
	default:
		logger.Error().Err(err).Msg("failed to record decision")
		return Errored("internal error")
	}
	logger.Info().Str("decision", string(parsed.Decision)).Msg("decision recorded")

	s.confirm(ctx, &model.Confirmation{
		RequestID: request.ID,
		Decision:  parsed.Decision,
		From:      payload.To,
		To:        payload.From,
	})
	return Succeeded(request.FullRequestID, parsed.Decision)
}

func (s *Service) confirm(ctx context.Context, confirmation *model.Confirmation) {
	if s.outbox == nil {
		return
	}
	if err := s.outbox.Publish(context.WithoutCancel(ctx), confirmation); err != nil {
		metrics.RecordConfirmation("dropped")
		s.logger.Warn().Err(err).Str("requestId", confirmation.RequestID).Msg("confirmation not queued")
	}
}

// Get returns a stored request.
func (s *Service) Get(ctx context.Context, id string) (*model.Request, error) {
	return s.store.Load(ctx, id)
}

// List returns stored requests filtered by parameters.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Request, error) {
	return s.store.List(ctx, parameters...)
}

// ListPending returns the requests still awaiting a decision that have not
// expired yet, optionally restricted to recipient.
func (s *Service) ListPending(ctx context.Context, recipient string) ([]*model.Request, error) {
	parameters := []*dao.Parameter{dao.NewParameter(dao.ParamStatus, string(model.StatusPending))}
	if recipient != "" {
		parameters = append(parameters, dao.NewParameter(dao.ParamRecipient, model.BareAddress(recipient)))
	}
	requests, err := s.store.List(ctx, parameters...)
	if err != nil {
		return nil, err
	}
	now := s.now()
	ret := requests[:0]
	for _, r := range requests {
		if !r.IsExpired(now) {
			ret = append(ret, r)
		}
	}
	return ret, nil
}
