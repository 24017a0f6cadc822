// Package fs implements a durable messaging.Queue on an afs location.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"

	"github.com/viant/approver/service/messaging"
)

// MessageState represents the state of a message in the filesystem queue
type MessageState string

const (
	// MessageStatePending indicates a message is waiting to be processed
	MessageStatePending MessageState = "pending"

	// MessageStateProcessing indicates a message is being processed
	MessageStateProcessing MessageState = "processing"

	// MessageStateFailed indicates a message failed and waits for a retry
	MessageStateFailed MessageState = "failed"

	// MessageStateDead indicates a message exhausted its retries
	MessageStateDead MessageState = "dead"
)

// Message implements messaging.Message for the filesystem queue
type Message[T any] struct {
	ID        string       `json:"id"`
	Data      T            `json:"data"`
	State     MessageState `json:"state"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Retries   int          `json:"retries"`

	name      string
	queue     *Queue[T]
	processed bool
	mu        sync.Mutex
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.Data
}

// Attempt returns the delivery attempt, starting at 1.
func (m *Message[T]) Attempt() int {
	return m.Retries + 1
}

// Ack removes the message from the queue.
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.ID)
	}
	m.processed = true
	return m.queue.complete(context.Background(), m)
}

// Nack parks the message for a delayed retry or moves it to the dead letter
// directory once retries are exhausted.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.ID)
	}
	m.processed = true
	if err != nil {
		m.Error = err.Error()
	}
	m.Retries++
	m.UpdatedAt = m.queue.now()
	return m.queue.fail(context.Background(), m)
}

// Config holds configuration for filesystem queue
type Config struct {
	BasePath     string        // Base location for queue files
	MaxRetries   int           // Maximum number of redeliveries
	RetryDelay   time.Duration // Base delay, doubled per attempt
	PollInterval time.Duration // Pause between empty reads in Consume
}

// DefaultConfig returns a default queue configuration
func DefaultConfig() Config {
	return Config{
		BasePath:     "outbox",
		MaxRetries:   3,
		RetryDelay:   time.Second,
		PollInterval: 250 * time.Millisecond,
	}
}

// FromConfig converts the generic queue settings for basePath.
func FromConfig(basePath string, cfg messaging.Config) (Config, error) {
	ret := DefaultConfig()
	if basePath != "" {
		ret.BasePath = basePath
	}
	if cfg.MaxRetries >= 0 {
		ret.MaxRetries = cfg.MaxRetries
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

// Queue is a filesystem backed messaging.Queue. Messages survive restarts:
// deliveries interrupted by a crash are returned to pending on open.
type Queue[T any] struct {
	fs            afs.Service
	config        Config
	pendingDir    string
	processingDir string
	failedDir     string
	dlqDir        string
	now           func() time.Time

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewQueue opens or creates a queue under config.BasePath.
func NewQueue[T any](ctx context.Context, fs afs.Service, config Config) (*Queue[T], error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	basePath := url.Normalize(config.BasePath, file.Scheme)
	q := &Queue[T]{
		fs:            fs,
		config:        config,
		pendingDir:    url.Join(basePath, "pending"),
		processingDir: url.Join(basePath, "processing"),
		failedDir:     url.Join(basePath, "failed"),
		dlqDir:        url.Join(basePath, "dlq"),
		now:           time.Now,
		done:          make(chan struct{}),
	}
	for _, dir := range []string{q.pendingDir, q.processingDir, q.failedDir, q.dlqDir} {
		exists, _ := fs.Exists(ctx, dir)
		if !exists {
			if err := fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}
	if err := q.recover(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

// recover returns interrupted deliveries to pending.
func (q *Queue[T]) recover(ctx context.Context) error {
	objects, err := q.list(ctx, q.processingDir)
	if err != nil {
		return err
	}
	for _, obj := range objects {
		if err := q.fs.Move(ctx, obj.URL(), url.Join(q.pendingDir, obj.Name())); err != nil {
			return fmt.Errorf("failed to recover message %s: %w", obj.Name(), err)
		}
	}
	return nil
}

// Publish writes a new message to the pending directory.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if q.isClosed() {
		return messaging.ErrQueueClosed
	}
	now := q.now()
	message := &Message[T]{
		ID:        uuid.New().String(),
		Data:      *t,
		State:     MessageStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	message.name = fmt.Sprintf("%020d-%s.json", now.UnixNano(), message.ID)
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.write(ctx, url.Join(q.pendingDir, message.name), message)
}

// Consume polls for the oldest pending message, or a failed one whose
// backoff elapsed, until ctx is done or the queue closes.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	for {
		if q.isClosed() {
			return nil, messaging.ErrQueueClosed
		}
		message, err := q.next(ctx)
		if err != nil {
			return nil, err
		}
		if message != nil {
			return message, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
			return nil, messaging.ErrQueueClosed
		case <-time.After(q.config.PollInterval):
		}
	}
}

func (q *Queue[T]) next(ctx context.Context) (*Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	failed, err := q.list(ctx, q.failedDir)
	if err != nil {
		return nil, err
	}
	for _, obj := range failed {
		message, err := q.read(ctx, obj)
		if err != nil {
			_ = q.fs.Move(ctx, obj.URL(), url.Join(q.dlqDir, "invalid-"+obj.Name()))
			continue
		}
		if q.now().Before(message.UpdatedAt.Add(q.backoff(message.Retries))) {
			continue
		}
		return q.claim(ctx, obj, message)
	}

	pending, err := q.list(ctx, q.pendingDir)
	if err != nil {
		return nil, err
	}
	for _, obj := range pending {
		message, err := q.read(ctx, obj)
		if err != nil {
			_ = q.fs.Move(ctx, obj.URL(), url.Join(q.dlqDir, "invalid-"+obj.Name()))
			continue
		}
		return q.claim(ctx, obj, message)
	}
	return nil, nil
}

func (q *Queue[T]) backoff(retries int) time.Duration {
	if retries <= 0 {
		return 0
	}
	return q.config.RetryDelay << (retries - 1)
}

// claim moves a message into processing.
func (q *Queue[T]) claim(ctx context.Context, obj storage.Object, message *Message[T]) (*Message[T], error) {
	message.State = MessageStateProcessing
	message.UpdatedAt = q.now()
	if err := q.write(ctx, url.Join(q.processingDir, message.name), message); err != nil {
		return nil, fmt.Errorf("failed to move message to processing directory: %w", err)
	}
	if err := q.fs.Delete(ctx, obj.URL()); err != nil {
		return nil, fmt.Errorf("failed to delete claimed message %s: %w", obj.Name(), err)
	}
	return message, nil
}

func (q *Queue[T]) complete(ctx context.Context, m *Message[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.remove(ctx, url.Join(q.processingDir, m.name))
}

func (q *Queue[T]) fail(ctx context.Context, m *Message[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	dest := q.failedDir
	m.State = MessageStateFailed
	if m.Retries > q.config.MaxRetries {
		dest = q.dlqDir
		m.State = MessageStateDead
	}
	if err := q.write(ctx, url.Join(dest, m.name), m); err != nil {
		return err
	}
	return q.remove(ctx, url.Join(q.processingDir, m.name))
}

func (q *Queue[T]) remove(ctx context.Context, location string) error {
	if exists, _ := q.fs.Exists(ctx, location); exists {
		if err := q.fs.Delete(ctx, location); err != nil {
			return fmt.Errorf("failed to delete %s: %w", location, err)
		}
	}
	return nil
}

// Close stops the queue; stored messages stay for the next open.
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}

func (q *Queue[T]) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// DeadLetters returns the messages that exhausted their retries.
func (q *Queue[T]) DeadLetters(ctx context.Context) ([]*Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	objects, err := q.list(ctx, q.dlqDir)
	if err != nil {
		return nil, err
	}
	var ret []*Message[T]
	for _, obj := range objects {
		message, err := q.read(ctx, obj)
		if err != nil {
			continue
		}
		ret = append(ret, message)
	}
	return ret, nil
}

// list returns the json files of dir ordered by name, oldest first.
func (q *Queue[T]) list(ctx context.Context, dir string) ([]storage.Object, error) {
	objects, err := q.fs.List(ctx, dir, option.NewRecursive(false))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var ret []storage.Object
	for _, obj := range objects {
		if !obj.IsDir() && strings.HasSuffix(obj.Name(), ".json") {
			ret = append(ret, obj)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name() < ret[j].Name() })
	return ret, nil
}

func (q *Queue[T]) write(ctx context.Context, location string, message *Message[T]) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err = q.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write message %s: %w", location, err)
	}
	return nil
}

func (q *Queue[T]) read(ctx context.Context, obj storage.Object) (*Message[T], error) {
	data, err := q.fs.Download(ctx, obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %s: %w", obj.URL(), err)
	}
	var message Message[T]
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message %s: %w", obj.URL(), err)
	}
	message.name = obj.Name()
	message.queue = q
	return &message, nil
}

// ensure Queue implements messaging.Queue interface
var _ messaging.Queue[any] = (*Queue[any])(nil)
