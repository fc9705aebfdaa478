// Package llm is the model invocation port: a single Invoke call that turns
// a prompt into raw model text. Provider adapters and the resilience
// decorator all satisfy Invoker.
package llm

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrRateLimited is returned when the client-side limiter refuses a call.
var ErrRateLimited = eris.New("llm: rate limited")

// ErrEmptyResponse is returned when a provider answers without text.
var ErrEmptyResponse = eris.New("llm: empty response")

// Prompt is one rendered model request.
type Prompt struct {
	System string
	User   string
	// Label names the stage or check for cost logging.
	Label string
	// MaxTokens overrides the adapter default when positive.
	MaxTokens int
}

// Invoker sends a prompt to a model and returns its raw text.
type Invoker interface {
	Invoke(ctx context.Context, p Prompt) (string, error)
}

// Func adapts a plain function to Invoker.
type Func func(ctx context.Context, p Prompt) (string, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}
