package llm

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/resilience"
)

// Resilient decorates an Invoker with a client-side rate limiter, a circuit
// breaker and a retry policy. The limiter and breaker are shared by every
// caller of the same Resilient value.
type Resilient struct {
	next    Invoker
	limiter *rate.Limiter
	breaker *resilience.Breaker
	policy  resilience.RetryPolicy
}

// NewResilient wraps next. A nil limiter means unlimited.
func NewResilient(next Invoker, limiter *rate.Limiter, breaker *resilience.Breaker, policy resilience.RetryPolicy) *Resilient {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if breaker == nil {
		breaker = resilience.NewBreaker(resilience.DefaultBreakerConfig())
	}
	return &Resilient{next: next, limiter: limiter, breaker: breaker, policy: policy}
}

// Breaker exposes the circuit breaker state for health reporting.
func (r *Resilient) Breaker() *resilience.Breaker {
	return r.breaker
}

// Invoke implements Invoker.
func (r *Resilient) Invoke(ctx context.Context, p Prompt) (string, error) {
	return resilience.Retry(ctx, r.policy, func(ctx context.Context) (string, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", eris.Wrap(ErrRateLimited, err.Error())
		}
		return resilience.Call(ctx, r.breaker, func(ctx context.Context) (string, error) {
			return r.next.Invoke(ctx, p)
		})
	})
}
