package approval

import (
	"context"
	"errors"
)

var (
	ErrNotConfigured = errors.New("not configured")
	ErrSendFailed    = errors.New("send failed")
	ErrExpired       = errors.New("expired")
	ErrTimedOut      = errors.New("timed out")
	ErrCancelled     = errors.New("cancelled")
	ErrNotFound      = errors.New("request not found")
)

var reasons = []error{ErrNotConfigured, ErrSendFailed, ErrExpired, ErrTimedOut, ErrCancelled, ErrNotFound}

// reasonOf maps an error onto the short reason reported to callers.
func reasonOf(err error) string {
	if err == nil {
		return ""
	}
	for _, candidate := range reasons {
		if errors.Is(err, candidate) {
			return candidate.Error()
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrCancelled.Error()
	}
	return err.Error()
}
