package approval

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/viant/approver/model"
	"github.com/viant/approver/service/messaging"
)

// Option customises the lifecycle service.
type Option func(*Service)

// WithConfig sets timing and addressing.
func WithConfig(config Config) Option {
	return func(s *Service) { s.config = config }
}

// WithOutbox sets the queue confirmations are published to.
func WithOutbox(queue messaging.Queue[model.Confirmation]) Option {
	return func(s *Service) { s.outbox = queue }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSleeper replaces the pause between polls; the returned channel fires
// when the wait is over.
func WithSleeper(after func(d time.Duration) <-chan time.Time) Option {
	return func(s *Service) { s.after = after }
}
