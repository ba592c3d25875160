// Package generation defines the content-generation capability the refinement
// engine consumes, the request builders that feed it, and a chat-model
// adapter that implements it.
package generation

import (
	"context"
	"encoding/json"
)

// Result is what a generator returns. Payload holds the decoded JSON body
// when structured output was requested and could be extracted; Text is the
// raw response.
type Result struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	Text    string          `json:"text,omitempty"`
}

// Structured reports whether the result carries a JSON payload.
func (r *Result) Structured() bool {
	return r != nil && len(r.Payload) > 0
}

// Generator produces content for a prompt. Implementations are black boxes:
// callers never rely on their retry or timeout behavior, and must treat the
// payload as untrusted.
type Generator interface {
	Generate(ctx context.Context, prompt string, expectStructured bool) (*Result, error)
}

// Func adapts a plain function to the Generator interface.
type Func func(ctx context.Context, prompt string, expectStructured bool) (*Result, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, prompt string, expectStructured bool) (*Result, error) {
	return f(ctx, prompt, expectStructured)
}

// Static returns a Generator that always answers with payload.
func Static(payload string) Generator {
	return Func(func(context.Context, string, bool) (*Result, error) {
		return &Result{Payload: json.RawMessage(payload), Text: payload}, nil
	})
}
