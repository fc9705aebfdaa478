package resilience

import (
	"time"

	"go.uber.org/zap"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/config"
)

// PolicyFromConfig converts configured values to a RetryPolicy, keeping
// defaults for anything unset.
func PolicyFromConfig(cfg config.ResilienceConfig, provider string) RetryPolicy {
	p := DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoffMs > 0 {
		p.InitialBackoff = time.Duration(cfg.InitialBackoffMs) * time.Millisecond
	}
	if cfg.MaxBackoffMs > 0 {
		p.MaxBackoff = time.Duration(cfg.MaxBackoffMs) * time.Millisecond
	}
	p.OnRetry = LogRetries(provider)
	return p
}

// BreakerFromConfig converts configured values to a BreakerConfig.
func BreakerFromConfig(cfg config.ResilienceConfig, provider string) BreakerConfig {
	b := DefaultBreakerConfig()
	if cfg.FailureThreshold > 0 {
		b.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.ResetTimeoutSecs > 0 {
		b.ResetTimeout = time.Duration(cfg.ResetTimeoutSecs) * time.Second
	}
	b.OnStateChange = func(from, to CircuitState) {
		zap.L().Warn("llm: circuit breaker transition",
			zap.String("provider", provider),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	return b
}
