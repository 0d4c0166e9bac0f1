package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/arahq/ara/internal/llm"
	"github.com/arahq/ara/internal/thread"
)

// RetryConfig bounds retries of transient model failures.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns the defaults used for model calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryableError classifies model backend failures. Providers surface
// throttling and outages with inconsistent error types, so this matches
// on the message.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if containsAny(msg, "rate limit", "quota exceeded", "429") {
		return true
	}
	if containsAny(msg, "500", "502", "503", "504", "unavailable") {
		return true
	}
	if containsAny(msg, "connection reset", "timeout", "temporary") {
		return true
	}
	return false
}

func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// completeWithRetry invokes the model with the retry budget. Each attempt
// waits on the rate limiter first so retries cannot amplify throttling.
func (e *Engine) completeWithRetry(ctx context.Context, req llm.Request, onDelta func(string)) (thread.Message, error) {
	attempt := 0
	start := time.Now()

	operation := func() (thread.Message, error) {
		attempt++
		if e.rateLimiter != nil {
			if err := e.rateLimiter.Wait(ctx); err != nil {
				return thread.Message{}, backoff.Permanent(fmt.Errorf("rate limit wait: %w", err))
			}
		}

		var msg thread.Message
		var err error
		if onDelta != nil {
			msg, err = e.model.CompleteStream(ctx, req, onDelta)
		} else {
			msg, err = e.model.Complete(ctx, req)
		}
		if err != nil {
			if !retryableError(err) {
				return thread.Message{}, backoff.Permanent(err)
			}
			e.logger.Debug("retrying model call",
				"attempt", attempt,
				"elapsed", time.Since(start),
				"error", err)
			return thread.Message{}, err
		}
		return msg, nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newModelBackOff(e.retryConfig), uint64(e.retryConfig.MaxRetries)), //nolint:gosec // MaxRetries is small and positive
		ctx,
	)
	msg, err := backoff.RetryWithData(operation, policy)
	if err != nil {
		return thread.Message{}, fmt.Errorf("model completion after %d attempts (elapsed %v): %w",
			attempt, time.Since(start), err)
	}
	return msg, nil
}

func newModelBackOff(cfg RetryConfig) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	return b
}
