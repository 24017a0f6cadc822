package parser

import "errors"

// Rejections; the message doubles as the reason reported to the webhook caller.
var (
	ErrMalformedPayload = errors.New("malformed_payload")
	ErrUnknownAction    = errors.New("unknown_action")
	ErrEmptyBody        = errors.New("empty_body")
	ErrStatusCallback   = errors.New("status callback")
)
