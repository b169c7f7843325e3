package agent

import (
	"context"
	"fmt"

	"nbupdater/pkg/agent/llm"
)

// MockLLMClient provides a controllable implementation of llm.LLMClient
// for testing. Responses and errors are consumed in order; an error at
// position i is returned before response i.
type MockLLMClient struct {
	responses     []llm.CompletionResponse
	responseIndex int
	errors        []error
	errorIndex    int
	Requests      []llm.CompletionRequest // Captured requests, in order
}

// NewMockLLMClient creates a new mock client with predefined responses.
func NewMockLLMClient(responses []llm.CompletionResponse, errs []error) *MockLLMClient {
	return &MockLLMClient{responses: responses, errors: errs}
}

// Complete returns the next predefined response or error.
//
//nolint:gocritic // request passed by value matches interface
func (m *MockLLMClient) Complete(_ context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.Requests = append(m.Requests, in)

	if m.errorIndex < len(m.errors) && m.errors[m.errorIndex] != nil {
		err := m.errors[m.errorIndex]
		m.errorIndex++
		return llm.CompletionResponse{}, err
	}
	if m.errorIndex < len(m.errors) {
		m.errorIndex++
	}

	if m.responseIndex >= len(m.responses) {
		return llm.CompletionResponse{}, fmt.Errorf("mock client: no more responses")
	}
	resp := m.responses[m.responseIndex]
	m.responseIndex++
	return resp, nil
}

// Stream emits the next response as a single chunk.
//
//nolint:gocritic // request passed by value matches interface
func (m *MockLLMClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	resp, err := m.Complete(ctx, in)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamChunk, 1)
	ch <- llm.StreamChunk{Content: resp.Content, Done: true}
	close(ch)
	return ch, nil
}

// GetModelName identifies this client as a mock.
func (m *MockLLMClient) GetModelName() string {
	return "mock"
}
