package webhook

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/viant/approver/internal/metrics"
	"github.com/viant/approver/model"
	"github.com/viant/approver/service/approval"
	"github.com/viant/approver/service/dao"
	"github.com/viant/approver/service/parser"
)

// maxFormSize bounds callback bodies.
const maxFormSize = 1 << 20

// Approvals is the lifecycle surface the server exposes.
type Approvals interface {
	HandleWebhook(ctx context.Context, payload *parser.Payload) *approval.WebhookResult
	Get(ctx context.Context, id string) (*model.Request, error)
	List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Request, error)
}

// Validator verifies channel callback signatures.
type Validator interface {
	Valid(callbackURL string, form url.Values, signature string) bool
}

// Server is the HTTP transport: channel callbacks, MCP over HTTP,
// approval inspection, health and metrics.
type Server struct {
	config    Config
	approvals Approvals
	mcp       http.Handler
	validator Validator
	signature string
	logger    zerolog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Option customises the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMCP mounts an MCP handler at /mcp.
func WithMCP(handler http.Handler) Option {
	return func(s *Server) { s.mcp = handler }
}

// WithSignatureValidator sets the callback signature validator and the header
// carrying the signature.
func WithSignatureValidator(validator Validator, header string) Option {
	return func(s *Server) {
		s.validator = validator
		s.signature = header
	}
}

// New creates a server.
func New(config Config, approvals Approvals, options ...Option) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if approvals == nil {
		return nil, fmt.Errorf("approvals service is required")
	}
	ret := &Server{config: config, approvals: approvals, logger: zerolog.Nop()}
	for _, option := range options {
		option(ret)
	}
	if config.ValidateSignature && ret.validator == nil {
		return nil, fmt.Errorf("signature validation enabled without a validator")
	}
	return ret, nil
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(recoverPanic(s.logger), observe(s.logger))

	router.HandleFunc(s.config.WebhookPath, s.handleWebhook).Methods(http.MethodPost)
	router.HandleFunc(s.config.WebhookPath, s.handleWebhookProbe).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	guarded := router.NewRoute().Subrouter()
	guarded.Use(requireAPIKey(s.config.APIKeyHash))
	guarded.HandleFunc("/approvals", s.handleList).Methods(http.MethodGet)
	guarded.HandleFunc("/approvals/{id}", s.handleGet).Methods(http.MethodGet)
	if s.mcp != nil {
		guarded.Handle("/mcp", s.mcp).Methods(http.MethodPost)
	}
	return router
}

// Start listens on the configured port and serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on port %d: %w", s.config.Port, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	server := s.server
	s.mu.Unlock()

	s.logger.Info().Str("addr", listener.Addr().String()).Str("webhook", s.config.WebhookPath).Msg("http server listening")
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseForm(); err != nil {
		metrics.RecordWebhook(approval.WebhookError, "malformed_payload")
		WriteJSON(w, approval.Errored("malformed_payload"), http.StatusOK)
		return
	}
	if s.config.ValidateSignature {
		signature := r.Header.Get(s.signature)
		if !s.validator.Valid(s.callbackURL(r), r.PostForm, signature) {
			s.logger.Warn().Str("from", r.PostForm.Get("From")).Msg("rejected callback with invalid signature")
			WriteError(w, http.StatusForbidden, fmt.Errorf("invalid signature"))
			return
		}
	}
	result := s.approvals.HandleWebhook(r.Context(), parser.FromForm(r.PostForm))
	WriteJSON(w, result, http.StatusOK)
}

// callbackURL reconstructs the URL the channel signed.
func (s *Server) callbackURL(r *http.Request) string {
	if s.config.PublicURL != "" {
		return strings.TrimRight(s.config.PublicURL, "/") + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func (s *Server) handleWebhookProbe(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, map[string]string{
		"status":  "webhook endpoint reachable",
		"message": "Configure Twilio to POST here",
	}, http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	pending, err := s.approvals.List(ctx, dao.NewParameter(dao.ParamStatus, string(model.StatusPending)))
	if err != nil {
		s.logger.Error().Err(err).Msg("health check failed")
		WriteJSON(w, map[string]string{"status": "unhealthy", "error": err.Error()}, http.StatusServiceUnavailable)
		return
	}
	WriteJSON(w, map[string]interface{}{"status": "ok", "pending": len(pending)}, http.StatusOK)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var parameters []*dao.Parameter
	if statuses := query["status"]; len(statuses) > 0 {
		for _, status := range statuses {
			if !model.Status(status).Valid() {
				WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid status: %q", status))
				return
			}
		}
		parameters = append(parameters, dao.NewParameter(dao.ParamStatus, statuses...))
	}
	if recipients := query["recipient"]; len(recipients) > 0 {
		bare := make([]string, len(recipients))
		for i, recipient := range recipients {
			bare[i] = model.BareAddress(recipient)
		}
		parameters = append(parameters, dao.NewParameter(dao.ParamRecipient, bare...))
	}
	requests, err := s.approvals.List(r.Context(), parameters...)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err)
		return
	}
	if requests == nil {
		requests = []*model.Request{}
	}
	WriteJSON(w, requests, http.StatusOK)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := strings.ToLower(mux.Vars(r)["id"])
	request, err := s.approvals.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Errorf("approval request %q not found", id))
			return
		}
		WriteError(w, http.StatusInternalServerError, err)
		return
	}
	WriteJSON(w, request, http.StatusOK)
}
