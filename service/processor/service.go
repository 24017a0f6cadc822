package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/viant/approver/internal/metrics"
	"github.com/viant/approver/model"
	"github.com/viant/approver/service/dispatcher"
	"github.com/viant/approver/service/messaging"
	"github.com/viant/approver/tracing"
)

// Config represents processor configuration
type Config struct {
	// WorkerCount is the number of workers sending confirmations
	WorkerCount int

	// SendTimeout bounds a single dispatcher call
	SendTimeout time.Duration
}

// DefaultConfig returns the default processor configuration
func DefaultConfig() Config {
	return Config{
		WorkerCount: 2,
		SendTimeout: 15 * time.Second,
	}
}

// Service delivers queued confirmations.
type Service struct {
	config     Config
	queue      messaging.Queue[model.Confirmation]
	dispatcher dispatcher.Service
	logger     zerolog.Logger

	mu       sync.Mutex
	workers  []*worker
	workerWg sync.WaitGroup
}

type worker struct {
	id       int
	service  *Service
	ctx      context.Context
	cancelFn context.CancelFunc
}

// New creates a processor.
func New(options ...Option) (*Service, error) {
	s := &Service{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.queue == nil {
		return nil, fmt.Errorf("message queue is required")
	}
	if s.dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if s.config.WorkerCount <= 0 {
		s.config.WorkerCount = 1
	}
	return s, nil
}

// Start spawns the workers; they run until ctx is done or Shutdown is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.workers) > 0 {
		return fmt.Errorf("processor already started")
	}
	for i := 0; i < s.config.WorkerCount; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{id: i, service: s, ctx: workerCtx, cancelFn: cancel}
		s.workers = append(s.workers, w)
		s.workerWg.Add(1)
		go w.run()
	}
	return nil
}

// run processes messages from the queue
func (w *worker) run() {
	defer w.service.workerWg.Done()
	for {
		msg, err := w.service.queue.Consume(w.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, messaging.ErrQueueClosed) {
				return
			}
			w.service.logger.Warn().Err(err).Int("worker", w.id).Msg("consume failed")
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if msg == nil {
			continue
		}
		if pErr := w.service.processMessage(w.ctx, msg); pErr != nil {
			w.service.logger.Error().Err(pErr).Int("worker", w.id).Msg("failed to settle confirmation")
		}
	}
}

func (s *Service) processMessage(ctx context.Context, message messaging.Message[model.Confirmation]) (err error) {
	confirmation := message.T()
	ctx, span := tracing.StartSpan(ctx, "processor.confirm", "INTERNAL")
	span.WithAttributes(map[string]string{"request.id": confirmation.RequestID, "decision": string(confirmation.Decision)})
	defer func() { tracing.EndSpan(span, err) }()

	sendCtx, cancel := context.WithTimeout(ctx, s.config.SendTimeout)
	defer cancel()
	sendErr := s.dispatcher.Confirm(sendCtx, confirmation)
	if sendErr == nil {
		metrics.RecordConfirmation("sent")
		s.logger.Info().Str("requestId", confirmation.RequestID).Str("decision", string(confirmation.Decision)).Msg("confirmation sent")
		return message.Ack()
	}
	if errors.Is(sendErr, dispatcher.ErrNotConfigured) {
		metrics.RecordConfirmation("skipped")
		return message.Ack()
	}
	metrics.RecordConfirmation("failed")
	s.logger.Warn().Err(sendErr).Str("requestId", confirmation.RequestID).Int("attempt", message.Attempt()).Msg("confirmation send failed")
	return message.Nack(sendErr)
}

// Shutdown stops the workers and waits for them to exit.
func (s *Service) Shutdown() {
	s.mu.Lock()
	workers := s.workers
	s.workers = nil
	s.mu.Unlock()
	for _, w := range workers {
		w.cancelFn()
	}
	s.workerWg.Wait()
}
