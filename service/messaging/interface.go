// Package messaging defines a minimal queue contract used as an outbox for
// work that must not block the caller, such as decision confirmations.
package messaging

import (
	"context"
	"errors"
)

var (
	// ErrQueueFull is returned by Publish when the queue cannot take more messages.
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueClosed is returned once the queue was closed.
	ErrQueueClosed = errors.New("queue is closed")
)

// Queue represents an abstract message queue for any payload type
type Queue[T any] interface {
	// Publish adds a new message with payload to the queue without blocking.
	Publish(ctx context.Context, t *T) error

	// Consume blocks until a message is available or ctx is done.
	Consume(ctx context.Context) (Message[T], error)

	// Close stops accepting messages; pending retries are dropped.
	Close() error
}

// Message represents a message retrieved from a queue
type Message[T any] interface {
	// T returns the payload of this message
	T() *T

	// Attempt is the 1-based delivery attempt of this message.
	Attempt() int

	// Ack acknowledges successful processing of this message
	Ack() error

	// Nack indicates failure in processing this message; the queue decides
	// whether to redeliver it.
	Nack(err error) error
}

// Config defines standard configuration options for queue implementations
type Config struct {
	// MaxRetries specifies how many times a message can be redelivered
	MaxRetries int `json:"maxRetries" yaml:"maxRetries" mapstructure:"maxRetries"`

	// RetryDelay is the base delay before a failed message is redelivered;
	// it doubles with every attempt.
	RetryDelay string `json:"retryDelay" yaml:"retryDelay" mapstructure:"retryDelay"`

	// Buffer is the number of messages the queue holds.
	Buffer int `json:"buffer" yaml:"buffer" mapstructure:"buffer"`
}
