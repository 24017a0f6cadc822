// Package policy decides which tool calls need a human. Tools can be approved
// or denied up front by name so only the remaining calls reach the recipient.
package policy

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Modes applied to tools matched by neither list.
const (
	ModeAsk  = "ask"  // ask the recipient (default)
	ModeAuto = "auto" // approve without asking
	ModeDeny = "deny" // deny without asking
)

// Verdict is the policy answer for one tool.
type Verdict string

const (
	Ask     Verdict = "ask"
	Approve Verdict = "approve"
	Deny    Verdict = "deny"
)

// Policy lists tool name patterns that are approved or denied without asking.
// Patterns use path.Match syntax and match case insensitively; BlockList wins
// over AllowList. A nil *Policy asks for everything.
type Policy struct {
	Mode      string   `json:"mode,omitempty" yaml:"mode,omitempty" mapstructure:"mode"`
	AllowList []string `json:"allow,omitempty" yaml:"allow,omitempty" mapstructure:"allow"`
	BlockList []string `json:"block,omitempty" yaml:"block,omitempty" mapstructure:"block"`
}

// Validate checks the mode and patterns.
func (p *Policy) Validate() error {
	if p == nil {
		return nil
	}
	switch strings.ToLower(p.Mode) {
	case "", ModeAsk, ModeAuto, ModeDeny:
	default:
		return fmt.Errorf("invalid policy mode: %q", p.Mode)
	}
	for _, pattern := range append(append([]string(nil), p.AllowList...), p.BlockList...) {
		if _, err := path.Match(strings.ToLower(pattern), ""); err != nil {
			return fmt.Errorf("invalid policy pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// Decide returns the verdict for tool.
func (p *Policy) Decide(tool string) Verdict {
	if p == nil {
		return Ask
	}
	if matchAny(p.BlockList, tool) {
		return Deny
	}
	if matchAny(p.AllowList, tool) {
		return Approve
	}
	switch strings.ToLower(p.Mode) {
	case ModeAuto:
		return Approve
	case ModeDeny:
		return Deny
	}
	return Ask
}

func matchAny(patterns []string, tool string) bool {
	name := strings.ToLower(tool)
	for _, pattern := range patterns {
		if ok, _ := path.Match(strings.ToLower(pattern), name); ok {
			return true
		}
	}
	return false
}

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithPolicy embeds a per call policy in ctx, overriding the configured one.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, p)
}

// FromContext returns the policy embedded in ctx, or nil.
func FromContext(ctx context.Context) *Policy {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxKey).(*Policy); ok {
		return v
	}
	return nil
}
