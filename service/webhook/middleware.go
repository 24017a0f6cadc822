package webhook

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/viant/approver/internal/metrics"
	"github.com/viant/approver/tracing"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if template, err := route.GetPathTemplate(); err == nil {
			return template
		}
	}
	return "unmatched"
}

// observe logs, traces and counts every request.
func observe(logger zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			endpoint := routeName(r)
			ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+endpoint, "SERVER")
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))
			var err error
			if recorder.status >= http.StatusBadRequest {
				err = fmt.Errorf("http status %d", recorder.status)
			}
			span.SetStatusFromHTTPCode(recorder.status)
			tracing.EndSpan(span, err)
			metrics.RecordHTTPRequest(r.Method, endpoint, recorder.status)
			logger.Debug().
				Str("method", r.Method).
				Str("endpoint", endpoint).
				Int("status", recorder.status).
				Dur("duration", time.Since(started)).
				Msg("http request")
		})
	}
}

// recoverPanic turns handler panics into 500 responses.
func recoverPanic(logger zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panic")
					WriteError(w, http.StatusInternalServerError, fmt.Errorf("internal server error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// requireAPIKey guards a route with a bcrypt hashed key passed as a bearer
// token or X-API-Key header; an empty hash disables the check.
func requireAPIKey(hash string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if hash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := extractAPIKey(r)
			if !ok || !VerifyAPIKey(key, hash) {
				WriteError(w, http.StatusUnauthorized, fmt.Errorf("invalid or missing api key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractAPIKey(r *http.Request) (string, bool) {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key, true
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// HashAPIKey hashes an API key using bcrypt
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}

// VerifyAPIKey verifies an API key against its hash
func VerifyAPIKey(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
