package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/viant/approver/service/messaging"
)

// Config for memory queue implementation
type Config struct {
	MaxRetries  int
	RetryDelay  time.Duration
	DeadLetter  bool
	QueueBuffer int
}

// DefaultConfig returns a standard configuration for memory queue
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		RetryDelay:  500 * time.Millisecond,
		DeadLetter:  true,
		QueueBuffer: 256,
	}
}

// FromConfig converts the generic queue settings.
func FromConfig(cfg messaging.Config) (Config, error) {
	ret := DefaultConfig()
	if cfg.MaxRetries >= 0 {
		ret.MaxRetries = cfg.MaxRetries
	}
	if cfg.Buffer > 0 {
		ret.QueueBuffer = cfg.Buffer
	}
	if cfg.RetryDelay != "" {
		delay, err := time.ParseDuration(cfg.RetryDelay)
		if err != nil {
			return ret, fmt.Errorf("invalid retry delay %q: %w", cfg.RetryDelay, err)
		}
		ret.RetryDelay = delay
	}
	return ret, nil
}

// DeadLetter is a message that exhausted its retries.
type DeadLetter[T any] struct {
	ID       string
	Payload  T
	Attempts int
	Err      error
}

// Message implements messaging.Message for the in-memory queue
type Message[T any] struct {
	id        string
	payload   T
	queue     *Queue[T]
	attempt   int
	mu        sync.Mutex
	processed bool
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.payload
}

// Attempt returns the delivery attempt, starting at 1.
func (m *Message[T]) Attempt() int {
	return m.attempt
}

// Ack acknowledges the message as processed successfully
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.id)
	}
	m.processed = true
	return nil
}

// Nack schedules a redelivery with exponential backoff or moves the message
// to the dead letter list once retries are exhausted.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.id)
	}
	m.processed = true

	q := m.queue
	if m.attempt > q.config.MaxRetries {
		if q.config.DeadLetter {
			q.deadLetter(&DeadLetter[T]{ID: m.id, Payload: m.payload, Attempts: m.attempt, Err: err})
		}
		return nil
	}
	next := &Message[T]{id: m.id, payload: m.payload, queue: q, attempt: m.attempt + 1}
	delay := q.config.RetryDelay << (m.attempt - 1)
	q.retry(next, delay)
	return nil
}

// Queue implements an in-memory messaging.Queue
type Queue[T any] struct {
	messages chan *Message[T]
	config   Config
	done     chan struct{}

	mu      sync.Mutex // guards closed and timers
	closed  bool
	timers  map[*time.Timer]struct{}
	dlqMu   sync.Mutex
	dlq     []*DeadLetter[T]
	pending sync.WaitGroup
}

// NewQueue creates a new in-memory queue
func NewQueue[T any](config Config) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	return &Queue[T]{
		messages: make(chan *Message[T], config.QueueBuffer),
		config:   config,
		done:     make(chan struct{}),
		timers:   make(map[*time.Timer]struct{}),
	}
}

// Publish adds a new item to the queue; it fails fast when the buffer is full.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return messaging.ErrQueueClosed
	}
	msg := &Message[T]{id: uuid.New().String(), payload: *t, queue: q, attempt: 1}
	select {
	case q.messages <- msg:
		return nil
	default:
		return messaging.ErrQueueFull
	}
}

// Consume retrieves a single item from the queue
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-q.done:
		return nil, messaging.ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the queue and cancels scheduled retries.
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for timer := range q.timers {
		if timer.Stop() {
			q.pending.Done()
		}
	}
	q.timers = nil
	close(q.done)
	return nil
}

// Size returns the current number of messages in the queue
func (q *Queue[T]) Size() int {
	return len(q.messages)
}

// DeadLetters returns a snapshot of the messages that exhausted retries.
func (q *Queue[T]) DeadLetters() []*DeadLetter[T] {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return append([]*DeadLetter[T](nil), q.dlq...)
}

// WaitRetries blocks until every scheduled retry was requeued or dropped.
func (q *Queue[T]) WaitRetries() {
	q.pending.Wait()
}

func (q *Queue[T]) retry(msg *Message[T], delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.pending.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		defer q.pending.Done()
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.closed {
			return
		}
		delete(q.timers, timer)
		select {
		case q.messages <- msg:
		default:
			q.deadLetter(&DeadLetter[T]{ID: msg.id, Payload: msg.payload, Attempts: msg.attempt - 1, Err: messaging.ErrQueueFull})
		}
	})
	q.timers[timer] = struct{}{}
}

func (q *Queue[T]) deadLetter(letter *DeadLetter[T]) {
	if !q.config.DeadLetter {
		return
	}
	q.dlqMu.Lock()
	q.dlq = append(q.dlq, letter)
	q.dlqMu.Unlock()
}

// ensure Queue implements messaging.Queue interface
var _ messaging.Queue[any] = (*Queue[any])(nil)
