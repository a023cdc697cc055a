package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/dpmorgan-gotribe/agentflow/pkg/config"
)

const defaultRetryInterval = 500 * time.Millisecond

// retryProvider retries transient failures with exponential backoff.
type retryProvider struct {
	next       CompletionProvider
	maxRetries uint64
	initial    time.Duration
	logger     *slog.Logger
}

// WithRetry wraps next so transient failures are retried up to maxRetries
// times with exponential backoff. Non-retryable failures return immediately.
func WithRetry(next CompletionProvider, maxRetries int, logger *slog.Logger) CompletionProvider {
	if maxRetries <= 0 {
		return next
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retryProvider{
		next:       next,
		maxRetries: uint64(maxRetries),
		initial:    defaultRetryInterval,
		logger:     logger,
	}
}

func (p *retryProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var (
		resp        *CompletionResponse
		permFailure error
		attempt     int
	)

	operation := func() error {
		attempt++
		r, err := p.next.Complete(ctx, req)
		if err != nil {
			if !IsRetryable(err) {
				permFailure = err
				return backoff.Permanent(err)
			}
			p.logger.Warn("completion failed, will retry",
				"attempt", attempt,
				"max_retries", p.maxRetries,
				"error", err)
			return err
		}
		resp = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.initial
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, p.maxRetries), ctx))
	if err != nil {
		if permFailure != nil {
			return nil, permFailure
		}
		return nil, fmt.Errorf("completion failed after %d attempt(s): %w", attempt, err)
	}
	return resp, nil
}

// breakerProvider short-circuits calls while the backend is failing.
type breakerProvider struct {
	next CompletionProvider
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker wraps next in a circuit breaker that opens after threshold
// consecutive failures and probes again after a cooldown.
func WithBreaker(next CompletionProvider, threshold int, logger *slog.Logger) CompletionProvider {
	if threshold <= 0 {
		return next
	}
	if logger == nil {
		logger = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        "llm-completions",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	}
	return &breakerProvider{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (p *breakerProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	out, err := p.cb.Execute(func() (interface{}, error) {
		return p.next.Complete(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return nil, err
	}
	return out.(*CompletionResponse), nil
}

// Chain applies the configured middleware around a base provider: the
// breaker sits outside the retry loop so repeated retry exhaustion trips it.
func Chain(base CompletionProvider, cfg config.LLMProviderConfig, logger *slog.Logger) CompletionProvider {
	p := WithRetry(base, cfg.MaxRetries, logger)
	return WithBreaker(p, cfg.BreakerThreshold, logger)
}

// nonRetryable marks failures where another attempt cannot succeed.
var nonRetryable = []string{
	"unauthorized",
	"forbidden",
	"invalid api key",
	"invalid_request",
	"invalid request",
	"not found",
	"401",
	"403",
	"404",
}

// retryable marks transient transport failures.
var retryable = []string{
	"timeout",
	"timed out",
	"connection",
	"network",
	"temporary",
	"unavailable",
	"overloaded",
	"rate limit",
	"rate_limit",
	"429",
	"500",
	"502",
	"503",
	"529",
}

// IsRetryable reports whether another attempt at a failed completion can
// succeed. Context cancellation is never retryable; the surrounding call
// owns the deadline.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrEmptyResponse) || errors.Is(err, ErrNotConfigured) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range nonRetryable {
		if strings.Contains(msg, pattern) {
			return false
		}
	}
	for _, pattern := range retryable {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	// Unknown failures default to one more try.
	return true
}
