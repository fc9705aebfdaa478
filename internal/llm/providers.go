package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/resilience"
	"github.com/Virtual-Global-Trading-AG/lexpilot/pkg/anthropic"
	"github.com/Virtual-Global-Trading-AG/lexpilot/pkg/gemini"
	"github.com/Virtual-Global-Trading-AG/lexpilot/pkg/openai"
)

// Anthropic adapts an Anthropic client to Invoker.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic creates an Anthropic invoker.
func NewAnthropic(client anthropic.Client, model string, maxTokens int64) *Anthropic {
	return &Anthropic{client: client, model: model, maxTokens: maxTokens}
}

// Invoke implements Invoker.
func (a *Anthropic) Invoke(ctx context.Context, p Prompt) (string, error) {
	maxTokens := a.maxTokens
	if p.MaxTokens > 0 {
		maxTokens = int64(p.MaxTokens)
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(p.System),
		Messages:  []anthropic.Message{{Role: "user", Content: p.User}},
	})
	if err != nil {
		return "", withStatus("anthropic", anthropic.StatusCode(err), err)
	}
	resp.Usage.LogCost(a.model, p.Label)

	text := resp.Text()
	if text == "" {
		return "", eris.Wrapf(ErrEmptyResponse, "anthropic: stop_reason=%s", resp.StopReason)
	}
	return text, nil
}

// OpenAI adapts an OpenAI client to Invoker.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewOpenAI creates an OpenAI invoker.
func NewOpenAI(client openai.Client, model string, maxTokens int) *OpenAI {
	return &OpenAI{client: client, model: model, maxTokens: maxTokens}
}

// Invoke implements Invoker. Requests use JSON mode since every stage and
// check expects a JSON object.
func (o *OpenAI) Invoke(ctx context.Context, p Prompt) (string, error) {
	maxTokens := o.maxTokens
	if p.MaxTokens > 0 {
		maxTokens = p.MaxTokens
	}

	resp, err := o.client.Complete(ctx, openai.CompletionRequest{
		Model:     o.model,
		System:    p.System,
		User:      p.User,
		MaxTokens: maxTokens,
		JSON:      true,
	})
	if err != nil {
		return "", withStatus("openai", openai.StatusCode(err), err)
	}
	resp.Usage.LogCost(o.model, p.Label)

	if resp.Content == "" {
		return "", eris.Wrapf(ErrEmptyResponse, "openai: finish_reason=%s", resp.FinishReason)
	}
	return resp.Content, nil
}

// Gemini adapts a Gemini client to Invoker.
type Gemini struct {
	client    gemini.Client
	model     string
	maxTokens int32
}

// NewGemini creates a Gemini invoker.
func NewGemini(client gemini.Client, model string, maxTokens int32) *Gemini {
	return &Gemini{client: client, model: model, maxTokens: maxTokens}
}

// Invoke implements Invoker.
func (g *Gemini) Invoke(ctx context.Context, p Prompt) (string, error) {
	maxTokens := g.maxTokens
	if p.MaxTokens > 0 {
		maxTokens = int32(p.MaxTokens)
	}

	resp, err := g.client.Generate(ctx, gemini.GenerateRequest{
		Model:     g.model,
		System:    p.System,
		User:      p.User,
		MaxTokens: maxTokens,
		JSON:      true,
	})
	if err != nil {
		return "", withStatus("gemini", gemini.StatusCode(err), err)
	}
	resp.LogCost(g.model, p.Label)
	return resp.Text, nil
}

// withStatus attaches the provider status so retry and classification can
// see it without knowing the provider SDK.
func withStatus(provider string, code int, err error) error {
	if code == 0 {
		return err
	}
	return resilience.NewStatusError(provider, code, err)
}
