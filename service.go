package approver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/viant/afs"
	"github.com/viant/scy"

	"github.com/viant/approver/internal/logging"
	"github.com/viant/approver/model"
	"github.com/viant/approver/service/approval"
	"github.com/viant/approver/service/dao"
	"github.com/viant/approver/service/dao/request/fs"
	"github.com/viant/approver/service/dao/request/memory"
	"github.com/viant/approver/service/dao/request/sql"
	"github.com/viant/approver/service/dispatcher"
	"github.com/viant/approver/service/dispatcher/twilio"
	"github.com/viant/approver/service/mcp"
	"github.com/viant/approver/service/messaging"
	mfs "github.com/viant/approver/service/messaging/fs"
	mmemory "github.com/viant/approver/service/messaging/memory"
	"github.com/viant/approver/service/processor"
	"github.com/viant/approver/service/webhook"
	"github.com/viant/approver/tracing"
)

const serviceName = "approver"

// Service wires the request store, dispatcher, confirmation outbox,
// lifecycle manager and the HTTP and MCP surfaces.
type Service struct {
	config          *Config
	logger          zerolog.Logger
	version         string
	secrets         *scy.Service
	store           dao.RequestService
	storeCloser     io.Closer
	dispatcher      dispatcher.Service
	outbox          messaging.Queue[model.Confirmation]
	processor       *processor.Service
	approvals       *approval.Service
	approvalOptions []approval.Option
	mcp             *mcp.Server
	http            *webhook.Server
	traceShutdown   tracing.ShutdownFunc

	mu      sync.Mutex
	started bool
}

// New builds a service from config.
func New(ctx context.Context, config *Config, options ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ret := &Service{config: config, logger: zerolog.Nop(), version: "dev"}
	for _, option := range options {
		option(ret)
	}
	if err := ret.init(ctx); err != nil {
		_ = ret.close(context.Background())
		return nil, err
	}
	return ret, nil
}

func (s *Service) init(ctx context.Context) error {
	if s.config.Tracing.Enabled {
		shutdown, err := tracing.Init(serviceName, s.version, s.config.Tracing.Output)
		if err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
		s.traceShutdown = shutdown
	}
	if s.store == nil {
		store, closer, err := newStore(ctx, s.config.Store)
		if err != nil {
			return err
		}
		s.store, s.storeCloser = store, closer
	}

	twilioConfig := s.config.Twilio
	twilioConfig.ValidityWindow = s.config.Approval.ValidityWindow
	if twilioConfig.CredentialsURL != "" {
		if s.secrets == nil {
			s.secrets = scy.New()
		}
		if err := twilioConfig.LoadCredentials(ctx, s.secrets); err != nil {
			return err
		}
	}
	if s.dispatcher == nil {
		s.dispatcher = twilio.New(twilioConfig, twilio.WithLogger(logging.Component(s.logger, "twilio")))
	}

	var err error
	if s.outbox, err = newOutbox(ctx, s.config.Outbox); err != nil {
		return err
	}
	processorConfig := processor.DefaultConfig()
	processorConfig.WorkerCount = s.config.Outbox.Workers
	if s.processor, err = processor.New(
		processor.WithMessageQueue(s.outbox),
		processor.WithDispatcher(s.dispatcher),
		processor.WithConfig(processorConfig),
		processor.WithLogger(logging.Component(s.logger, "processor")),
	); err != nil {
		return err
	}

	approvalOptions := append([]approval.Option{
		approval.WithConfig(s.config.Approval),
		approval.WithOutbox(s.outbox),
		approval.WithLogger(logging.Component(s.logger, "approval")),
	}, s.approvalOptions...)
	if s.approvals, err = approval.New(s.store, s.dispatcher, approvalOptions...); err != nil {
		return err
	}

	s.mcp = mcp.New(s.approvals, mcp.WithLogger(logging.Component(s.logger, "mcp")), mcp.WithVersion(s.version))
	httpOptions := []webhook.Option{
		webhook.WithLogger(logging.Component(s.logger, "http")),
		webhook.WithMCP(s.mcp),
	}
	if s.config.Server.ValidateSignature {
		if twilioConfig.AuthToken == "" {
			return fmt.Errorf("server.validateSignature requires twilio.authToken")
		}
		httpOptions = append(httpOptions, webhook.WithSignatureValidator(twilio.NewSignatureValidator(twilioConfig.AuthToken), twilio.SignatureHeader))
	}
	s.http, err = webhook.New(s.config.Server, s.approvals, httpOptions...)
	return err
}

// newStore opens the configured request store; the closer is nil when the
// store holds no resources.
func newStore(ctx context.Context, config StoreConfig) (dao.RequestService, io.Closer, error) {
	switch driver := strings.ToLower(config.Driver); driver {
	case DriverMemory:
		return memory.New(), nil, nil
	case DriverFS:
		store, err := fs.New(ctx, config.BasePath)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case DriverSQLite, DriverPostgres:
		dialect, err := sql.ParseDialect(driver)
		if err != nil {
			return nil, nil, err
		}
		store, err := sql.Open(ctx, dialect, config.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver: %q", config.Driver)
	}
}

// newOutbox creates the confirmation queue.
func newOutbox(ctx context.Context, config OutboxConfig) (messaging.Queue[model.Confirmation], error) {
	if strings.ToLower(config.Driver) == DriverFS {
		queueConfig, err := mfs.FromConfig(config.BasePath, config.Config)
		if err != nil {
			return nil, err
		}
		queue, err := mfs.NewQueue[model.Confirmation](ctx, afs.New(), queueConfig)
		if err != nil {
			return nil, err
		}
		return queue, nil
	}
	queueConfig, err := mmemory.FromConfig(config.Config)
	if err != nil {
		return nil, err
	}
	return mmemory.NewQueue[model.Confirmation](queueConfig), nil
}

// Config returns the effective configuration.
func (s *Service) Config() *Config {
	return s.config
}

// Approvals returns the lifecycle manager.
func (s *Service) Approvals() *approval.Service {
	return s.approvals
}

// MCP returns the MCP tool server.
func (s *Service) MCP() *mcp.Server {
	return s.mcp
}

// HTTP returns the HTTP server.
func (s *Service) HTTP() *webhook.Server {
	return s.http
}

// Store returns the request store.
func (s *Service) Store() dao.RequestService {
	return s.store
}

// StartWorkers starts the confirmation workers without the HTTP server.
func (s *Service) StartWorkers(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if err := s.processor.Start(ctx); err != nil {
		return err
	}
	s.started = true
	return nil
}

// Start starts the workers and serves HTTP until Shutdown.
func (s *Service) Start(ctx context.Context) error {
	if err := s.StartWorkers(ctx); err != nil {
		return err
	}
	s.Banner(s.logger)
	return s.http.Start(ctx)
}

// Banner logs the recipient, channel state and endpoints.
func (s *Service) Banner(logger zerolog.Logger) {
	recipient := s.config.Approval.Recipient
	if recipient == "" {
		recipient = "NOT CONFIGURED"
	}
	port := s.config.Server.Port
	logger.Info().
		Str("recipient", recipient).
		Bool("channelConfigured", s.approvals.Configured()).
		Str("store", s.config.Store.Driver).
		Msg("starting approval server")
	if s.config.Approval.Recipient == "" {
		logger.Warn().Msg("approval.recipient (APPROVAL_PHONE) not set; requests will fail with not configured")
	}
	logger.Info().
		Str("mcp", fmt.Sprintf("http://localhost:%d/mcp", port)).
		Str("webhook", fmt.Sprintf("POST http://localhost:%d%s", port, s.config.Server.WebhookPath)).
		Str("test", fmt.Sprintf("GET http://localhost:%d%s", port, s.config.Server.WebhookPath)).
		Msg("endpoints")
}

// Shutdown stops HTTP, drains the workers and releases the store.
func (s *Service) Shutdown(ctx context.Context) error {
	var errs []error
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) close(ctx context.Context) error {
	var errs []error
	if s.processor != nil {
		s.processor.Shutdown()
	}
	if s.outbox != nil {
		if err := s.outbox.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.storeCloser != nil {
		if err := s.storeCloser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.traceShutdown != nil {
		if err := s.traceShutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
