package llm

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/config"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/resilience"
	"github.com/Virtual-Global-Trading-AG/lexpilot/pkg/anthropic"
	"github.com/Virtual-Global-Trading-AG/lexpilot/pkg/gemini"
	"github.com/Virtual-Global-Trading-AG/lexpilot/pkg/openai"
)

// New builds the configured provider invoker wrapped in the resilience
// decorator.
func New(ctx context.Context, cfg *config.Config) (*Resilient, error) {
	var (
		base Invoker
		err  error
	)
	provider := cfg.Model.Provider

	switch provider {
	case "anthropic":
		base = NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
	case "openai":
		base = NewOpenAI(openai.NewClient(cfg.OpenAI.Key, cfg.OpenAI.BaseURL), cfg.OpenAI.Model, cfg.OpenAI.MaxTokens)
	case "gemini":
		var client gemini.Client
		client, err = gemini.NewClient(ctx, cfg.Gemini.Key, "")
		if err != nil {
			return nil, eris.Wrap(err, "llm: gemini client")
		}
		base = NewGemini(client, cfg.Gemini.Model, cfg.Gemini.MaxTokens)
	default:
		return nil, eris.Errorf("llm: unsupported provider %q", provider)
	}

	return NewResilient(
		base,
		LimiterFromConfig(cfg.Resilience),
		resilience.NewBreaker(resilience.BreakerFromConfig(cfg.Resilience, provider)),
		resilience.PolicyFromConfig(cfg.Resilience, provider),
	), nil
}

// LimiterFromConfig returns a token bucket limiter, or an unlimited one when
// requests_per_second is not positive.
func LimiterFromConfig(cfg config.ResilienceConfig) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}
