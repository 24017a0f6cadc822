// Package mcp exposes the approval tool over the Model Context Protocol,
// on stdio for agents that spawn the server and on HTTP for remote agents.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/viant/approver/service/approval"
	"github.com/viant/approver/tracing"
)

const maxMessageSize = 4 * 1024 * 1024

// Approver asks a human to decide a tool call.
type Approver interface {
	RequestApproval(ctx context.Context, call *approval.ToolCall) *approval.Outcome
}

// Server handles MCP requests.
type Server struct {
	approver Approver
	name     string
	version  string
	logger   zerolog.Logger
}

// Option customises the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithVersion sets the reported server version.
func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

// New creates a server backed by approver.
func New(approver Approver, options ...Option) *Server {
	ret := &Server{approver: approver, name: "whatsapp-approval-server", version: "dev", logger: zerolog.Nop()}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Handle answers one request; notifications yield nil.
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	if req.IsNotification() {
		s.logger.Debug().Str("method", req.Method).Msg("notification")
		return nil
	}
	switch req.Method {
	case "initialize":
		return NewResponse(req.ID, map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"serverInfo":      map[string]interface{}{"name": s.name, "version": s.version},
			"capabilities":    map[string]interface{}{"tools": map[string]interface{}{"listChanged": false}},
		})
	case "ping":
		return NewResponse(req.ID, map[string]interface{}{})
	case "tools/list":
		return NewResponse(req.ID, map[string]interface{}{"tools": []interface{}{toolDefinition}})
	case "tools/call":
		return s.callTool(ctx, req)
	}
	return NewErrorResponse(req.ID, MethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
}

func (s *Server) callTool(ctx context.Context, req *Request) (resp *Response) {
	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, InvalidParams, "invalid params")
	}
	if params.Name != ToolName {
		return NewErrorResponse(req.ID, InvalidParams, fmt.Sprintf("unsupported tool: %s", params.Name))
	}
	call, err := decodeToolCall(params.Arguments)
	if err != nil {
		return NewErrorResponse(req.ID, InvalidParams, err.Error())
	}
	ctx, span := tracing.StartSpan(ctx, "mcp.tools/call", "SERVER")
	span.WithAttributes(map[string]string{"tool.name": call.ToolName})
	outcome := s.approver.RequestApproval(ctx, call)
	tracing.EndSpan(span, outcome.Err)

	payload, err := json.Marshal(ToolResult(outcome))
	if err != nil {
		return NewErrorResponse(req.ID, InternalError, err.Error())
	}
	return NewResponse(req.ID, map[string]interface{}{
		"content": []map[string]interface{}{{"type": "text", "text": string(payload)}},
		"isError": false,
	})
}

// Serve reads newline delimited requests from in and writes responses to out
// until in is exhausted or ctx is done. Calls run concurrently since each
// may block for the whole approval window.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	encoder := json.NewEncoder(out)
	var mu sync.Mutex
	var wg sync.WaitGroup
	write := func(resp *Response) {
		mu.Lock()
		defer mu.Unlock()
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error().Err(err).Msg("failed to write response")
		}
	}

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				wg.Wait()
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if len(line) == 0 {
				continue
			}
			req, err := UnmarshalRequest(line)
			if err != nil {
				if req == nil {
					write(NewErrorResponse(nil, ParseError, "parse error"))
				} else if !req.IsNotification() {
					write(NewErrorResponse(req.ID, InvalidRequest, "invalid request"))
				}
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if resp := s.Handle(ctx, req); resp != nil {
					write(resp)
				}
			}()
		}
	}
}

// ServeHTTP accepts a single JSON-RPC request per POST.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(NewErrorResponse(nil, InvalidRequest, "POST required"))
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(NewErrorResponse(nil, ParseError, "failed to read body"))
		return
	}
	req, err := UnmarshalRequest(data)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		if req == nil {
			_ = json.NewEncoder(w).Encode(NewErrorResponse(nil, ParseError, "parse error"))
			return
		}
		_ = json.NewEncoder(w).Encode(NewErrorResponse(req.ID, InvalidRequest, "invalid request"))
		return
	}
	resp := s.Handle(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}
