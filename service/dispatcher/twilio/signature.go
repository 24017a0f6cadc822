package twilio

import (
	"net/url"

	"github.com/twilio/twilio-go/client"
)

// SignatureHeader carries the request signature Twilio computes.
const SignatureHeader = "X-Twilio-Signature"

// SignatureValidator checks inbound callback signatures.
type SignatureValidator struct {
	validator client.RequestValidator
}

// NewSignatureValidator creates a validator for authToken.
func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{validator: client.NewRequestValidator(authToken)}
}

// Valid reports whether signature matches the callback URL and form values.
func (v *SignatureValidator) Valid(callbackURL string, form url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	params := make(map[string]string, len(form))
	for key := range form {
		params[key] = form.Get(key)
	}
	return v.validator.Validate(callbackURL, params, signature)
}
