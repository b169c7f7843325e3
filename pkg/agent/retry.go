package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"nbupdater/pkg/agent/llm"
	"nbupdater/pkg/agent/llmerrors"
	"nbupdater/pkg/logx"
)

// RetryableClient wraps an LLM client with classified-error retry.
// Backoff parameters come from the error's type, so a rate limit waits
// longer between attempts than an ordinary transient failure.
type RetryableClient struct {
	inner  llm.LLMClient
	logger *logx.Logger
}

// NewRetryableClient wraps client with retry behavior.
func NewRetryableClient(client llm.LLMClient, logger *logx.Logger) *RetryableClient {
	if logger == nil {
		logger = logx.NewLogger("llm-retry")
	}
	return &RetryableClient{inner: client, logger: logger}
}

// Complete calls the wrapped client, retrying retryable errors with
// per-error-type exponential backoff. Exhausting retries on a retryable
// error yields a ServiceUnavailable error so callers can give up cleanly.
//
//nolint:gocritic // request passed by value matches interface
func (r *RetryableClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	var lastErr error
	attempt := 0

	for {
		resp, err := r.inner.Complete(ctx, in)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		attempt++

		var llmErr *llmerrors.Error
		if !errors.As(err, &llmErr) || !llmErr.IsRetryable() {
			return llm.CompletionResponse{}, err
		}

		cfg := llmErr.GetRetryConfig()
		if attempt > cfg.MaxRetries {
			break
		}

		delay := backoffDelay(cfg, attempt)
		r.logger.Warn("LLM call failed (%s), retry %d/%d in %v: %v",
			llmErr.Type.String(), attempt, cfg.MaxRetries, delay, err)

		select {
		case <-ctx.Done():
			return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return llm.CompletionResponse{}, llmerrors.NewServiceUnavailableError(lastErr, attempt)
}

// Stream delegates to the wrapped client without retry. Re-driving a
// partially consumed stream would duplicate output, so stream callers
// handle failures themselves.
//
//nolint:gocritic // request passed by value matches interface
func (r *RetryableClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return r.inner.Stream(ctx, in)
}

// GetModelName returns the wrapped client's model name.
func (r *RetryableClient) GetModelName() string {
	return r.inner.GetModelName()
}

// backoffDelay computes the exponential backoff delay for an attempt,
// capped at the config maximum, with optional jitter of up to 10%.
func backoffDelay(cfg llmerrors.RetryConfig, attempt int) time.Duration {
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt-1)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter && delay > 0 {
		delay += time.Duration(rand.Int63n(int64(delay)/10 + 1)) //nolint:gosec // jitter needs no crypto rand
	}
	return delay
}
