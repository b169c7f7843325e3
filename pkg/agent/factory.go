// Package agent provides LLM client construction and retry wrapping for
// the chat participants.
package agent

import (
	"fmt"
	"strings"

	"nbupdater/pkg/agent/internal/llmimpl/anthropic"
	"nbupdater/pkg/agent/internal/llmimpl/google"
	"nbupdater/pkg/agent/internal/llmimpl/ollama"
	"nbupdater/pkg/agent/internal/llmimpl/openaiofficial"
	"nbupdater/pkg/agent/llm"
	"nbupdater/pkg/config"
	"nbupdater/pkg/logx"
)

// NewClient creates a retry-wrapped LLM client for the given model name.
// The provider is inferred from the model name and the credential is
// resolved through the config secret chain.
func NewClient(modelName string, logger *logx.Logger) (llm.LLMClient, error) {
	provider, err := config.GetModelProvider(modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to determine provider for model %s: %w", modelName, err)
	}

	// For Ollama the "key" is the host URL.
	apiKey, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, err)
	}

	var rawClient llm.LLMClient
	switch provider {
	case config.ProviderAnthropic:
		rawClient = anthropic.NewClaudeClientWithModel(apiKey, modelName)
	case config.ProviderOpenAI:
		rawClient = openaiofficial.NewOfficialClientWithModel(apiKey, modelName)
	case config.ProviderGoogle:
		rawClient = google.NewGeminiClientWithModel(apiKey, modelName)
	case config.ProviderOllama:
		rawClient = ollama.NewOllamaClientWithModel(apiKey, strings.TrimPrefix(modelName, "ollama:"))
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	return NewRetryableClient(rawClient, logger), nil
}
