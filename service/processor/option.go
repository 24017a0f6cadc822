package processor

import (
	"github.com/rs/zerolog"

	"github.com/viant/approver/model"
	"github.com/viant/approver/service/dispatcher"
	"github.com/viant/approver/service/messaging"
)

// Option customises the processor.
type Option func(*Service)

// WithMessageQueue sets the confirmation queue.
func WithMessageQueue(queue messaging.Queue[model.Confirmation]) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// WithDispatcher sets the dispatcher used to deliver confirmations.
func WithDispatcher(dispatcher dispatcher.Service) Option {
	return func(s *Service) {
		s.dispatcher = dispatcher
	}
}

// WithWorkers sets the number of worker goroutines
func WithWorkers(count int) Option {
	return func(s *Service) {
		s.config.WorkerCount = count
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithConfig sets the configuration for the service
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}
