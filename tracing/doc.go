// Package tracing wraps OpenTelemetry so lifecycle, webhook and outbox code
// can open spans without importing the SDK. Spans are no-ops until Init is
// called.
package tracing
