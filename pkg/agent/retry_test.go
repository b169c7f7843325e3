package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nbupdater/pkg/agent/llm"
	"nbupdater/pkg/agent/llmerrors"
)

// fastRetries shrinks the transient backoff so tests do not sleep.
func fastRetries(t *testing.T, maxRetries int) {
	t.Helper()
	old := llmerrors.DefaultRetryConfigs[llmerrors.ErrorTypeTransient]
	llmerrors.DefaultRetryConfigs[llmerrors.ErrorTypeTransient] = llmerrors.RetryConfig{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2.0,
	}
	t.Cleanup(func() {
		llmerrors.DefaultRetryConfigs[llmerrors.ErrorTypeTransient] = old
	})
}

func TestRetrySucceedsAfterTransientErrors(t *testing.T) {
	fastRetries(t, 2)

	transient := llmerrors.NewError(llmerrors.ErrorTypeTransient, "connection reset")
	mock := NewMockLLMClient(
		[]llm.CompletionResponse{{Content: "hello"}},
		[]error{transient, transient},
	)
	client := NewRetryableClient(mock, nil)

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Len(t, mock.Requests, 3)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	authErr := llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key")
	mock := NewMockLLMClient(nil, []error{authErr})
	client := NewRetryableClient(mock, nil)

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeAuth))
	assert.Len(t, mock.Requests, 1, "non-retryable errors must not be retried")
}

func TestRetryExhaustionYieldsServiceUnavailable(t *testing.T) {
	fastRetries(t, 2)

	transient := llmerrors.NewError(llmerrors.ErrorTypeTransient, "flaky")
	mock := NewMockLLMClient(nil, []error{transient, transient, transient})
	client := NewRetryableClient(mock, nil)

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeServiceUnavailable))
	assert.Len(t, mock.Requests, 3)
}

func TestRetryUnclassifiedErrorNotRetried(t *testing.T) {
	mock := NewMockLLMClient(nil, []error{assert.AnError})
	client := NewRetryableClient(mock, nil)

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.Error(t, err)
	assert.Len(t, mock.Requests, 1)
}

func TestBackoffDelayCappedAtMax(t *testing.T) {
	cfg := llmerrors.RetryConfig{
		MaxRetries:    10,
		InitialDelay:  time.Second,
		MaxDelay:      4 * time.Second,
		BackoffFactor: 2.0,
	}
	assert.Equal(t, time.Second, backoffDelay(cfg, 1))
	assert.Equal(t, 2*time.Second, backoffDelay(cfg, 2))
	assert.Equal(t, 4*time.Second, backoffDelay(cfg, 3))
	assert.Equal(t, 4*time.Second, backoffDelay(cfg, 8))
}
