package approver

import (
	"github.com/rs/zerolog"
	"github.com/viant/scy"

	"github.com/viant/approver/service/approval"
	"github.com/viant/approver/service/dao"
	"github.com/viant/approver/service/dispatcher"
)

// Option customises the service.
type Option func(s *Service)

// WithLogger sets the root logger; components derive tagged children.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithStore replaces the configured request store.
func WithStore(store dao.RequestService) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithDispatcher replaces the Twilio dispatcher.
func WithDispatcher(dispatcher dispatcher.Service) Option {
	return func(s *Service) {
		s.dispatcher = dispatcher
	}
}

// WithSecrets sets the scy service used to reveal Twilio credentials.
func WithSecrets(secrets *scy.Service) Option {
	return func(s *Service) {
		s.secrets = secrets
	}
}

// WithVersion sets the version reported over MCP and in traces.
func WithVersion(version string) Option {
	return func(s *Service) {
		s.version = version
	}
}

// WithApprovalOptions passes additional options to the lifecycle manager.
func WithApprovalOptions(options ...approval.Option) Option {
	return func(s *Service) {
		s.approvalOptions = append(s.approvalOptions, options...)
	}
}
