package tracing

import (
	"context"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/viant/approver"

// Config controls span export.
type Config struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	// Output is a file path; stdout is used when empty.
	Output string `json:"output,omitempty" yaml:"output,omitempty" mapstructure:"output"`
}

// ShutdownFunc flushes and stops the provider installed by Init.
type ShutdownFunc func(ctx context.Context) error

var (
	providerMu sync.Mutex
	provider   *sdktrace.TracerProvider
)

// Init installs a stdout exporter writing to outputFile (stdout when empty).
func Init(serviceName, serviceVersion, outputFile string) (ShutdownFunc, error) {
	var w io.Writer = os.Stdout
	var closer io.Closer
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return nil, err
		}
		w, closer = f, f
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	shutdown, err := InitWithExporter(serviceName, serviceVersion, exporter)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		err := shutdown(ctx)
		if closer != nil {
			if cErr := closer.Close(); err == nil {
				err = cErr
			}
		}
		return err
	}, nil
}

// InitWithExporter registers exporter as the global trace provider,
// replacing one installed earlier.
func InitWithExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) (ShutdownFunc, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)

	providerMu.Lock()
	previous := provider
	provider = tp
	providerMu.Unlock()
	otel.SetTracerProvider(tp)
	if previous != nil {
		_ = previous.Shutdown(context.Background())
	}
	return tp.Shutdown, nil
}

// Span wraps an OpenTelemetry span.
type Span struct {
	span trace.Span
}

// WithAttributes attaches all provided attributes to the span.
func (s *Span) WithAttributes(attrs map[string]string) *Span {
	if s == nil || len(attrs) == 0 {
		return s
	}
	otelAttrs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		otelAttrs = append(otelAttrs, attribute.String(k, v))
	}
	s.span.SetAttributes(otelAttrs...)
	return s
}

// AddEvent records a named event on the span.
func (s *Span) AddEvent(name string, attrs map[string]string) {
	if s == nil {
		return
	}
	otelAttrs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		otelAttrs = append(otelAttrs, attribute.String(k, v))
	}
	s.span.AddEvent(name, trace.WithAttributes(otelAttrs...))
}

// SetStatus records an error status on the span, OK when err is nil.
func (s *Span) SetStatus(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
		return
	}
	s.span.SetStatus(codes.Ok, "")
}

// SetStatusFromHTTPCode sets the span status based on an HTTP response code.
func (s *Span) SetStatusFromHTTPCode(code int) {
	if s == nil {
		return
	}
	s.span.SetAttributes(attribute.Int("http.status_code", code))
	switch {
	case code >= 100 && code < 400:
		s.span.SetStatus(codes.Ok, "")
	case code >= 400 && code < 500:
		s.span.SetStatus(codes.Error, "client error")
	case code >= 500:
		s.span.SetStatus(codes.Error, "server error")
	default:
		s.span.SetStatus(codes.Unset, "")
	}
}

// StartSpan starts a child span; kind is one of SERVER, CLIENT, PRODUCER,
// CONSUMER or INTERNAL.
func StartSpan(ctx context.Context, name, kind string) (context.Context, *Span) {
	tracer := otel.Tracer(instrumentationName)

	var spanKind trace.SpanKind
	switch kind {
	case "SERVER":
		spanKind = trace.SpanKindServer
	case "CLIENT":
		spanKind = trace.SpanKindClient
	case "PRODUCER":
		spanKind = trace.SpanKindProducer
	case "CONSUMER":
		spanKind = trace.SpanKindConsumer
	default:
		spanKind = trace.SpanKindInternal
	}
	ctx, span := tracer.Start(ctx, name, trace.WithSpanKind(spanKind))
	return ctx, &Span{span: span}
}

// EndSpan finalises the span and records status depending on the provided error.
func EndSpan(sp *Span, err error) {
	if sp == nil {
		return
	}
	sp.SetStatus(err)
	sp.span.End()
}

// SpanFromContext returns the span carried by ctx.
func SpanFromContext(ctx context.Context) (*Span, bool) {
	sp := trace.SpanFromContext(ctx)
	if !sp.SpanContext().IsValid() {
		return nil, false
	}
	return &Span{span: sp}, true
}
