// Package generation defines the boundary contract with the external
// language-generation backend. Backend identity and model choice are
// configuration; the core only sees a single request/response operation.
package generation

import "context"

// Turn is one prior conversation exchange forwarded for context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries the structured draft rendered as a prompt plus recent turns.
type Request struct {
	System string `json:"system"`
	Prompt string `json:"prompt"`
	Turns  []Turn `json:"turns,omitempty"`
}

// Backend elaborates a structured draft into prose. Implementations must
// honor ctx cancellation; callers bound every invocation with a deadline.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Static is a canned backend for tests and offline operation.
type Static struct {
	Text string
	Err  error
}

// Generate returns the canned text or error.
func (s Static) Generate(ctx context.Context, _ Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Err != nil {
		return "", s.Err
	}
	return s.Text, nil
}
