// Package config provides configuration loading, validation, and the
// static model registry for the notebook updater.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// ModelInfo contains static information about a known LLM model.
// This data is hardcoded in the application, not user-configurable.
type ModelInfo struct {
	Provider         string  // API provider (anthropic, openai, google, ollama)
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int     // Maximum context window size in tokens
	MaxOutputTokens  int     // Maximum output tokens per request
}

// KnownModels registry contains pricing and provider information for common models.
// This is optional - unknown models will be inferred via ProviderPatterns.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	// Claude models (Anthropic)
	"claude-3-7-sonnet-20250219": {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"claude-sonnet-4-5": {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"claude-opus-4-5": {
		Provider:         ProviderAnthropic,
		InputCPM:         15.0,
		OutputCPM:        75.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  16384,
	},

	// OpenAI GPT models
	"gpt-4o": {
		Provider:         ProviderOpenAI,
		InputCPM:         2.5,
		OutputCPM:        10.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  4096,
	},
	"o3": {
		Provider:         ProviderOpenAI,
		InputCPM:         1.1,
		OutputCPM:        4.4,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	"o4-mini": {
		Provider:         ProviderOpenAI,
		InputCPM:         1.1,
		OutputCPM:        4.4,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	"gpt-5": {
		Provider:         ProviderOpenAI,
		InputCPM:         20.0,
		OutputCPM:        60.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  4096,
	},

	// Google Gemini models
	"gemini-2.5-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.30,
		OutputCPM:        2.50,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
	"gemini-3-pro-preview": {
		Provider:         ProviderGoogle,
		InputCPM:         2.0,
		OutputCPM:        12.0,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
}

// ProviderPattern represents a pattern for inferring provider from model name.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from unknown model names.
// Allows using new models without code changes.
//
//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	// Ollama models - common open-source model prefixes
	{"phi", ProviderOllama},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"deepseek", ProviderOllama},
	{"ollama:", ProviderOllama}, // Explicit prefix like "ollama:phi4"
}

// GetModelProvider returns the API provider for a given model.
// First checks KnownModels, then tries pattern matching.
// Returns error if model cannot be mapped to a provider (FATAL).
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}

	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}

	return "", fmt.Errorf("unknown model '%s': no known provider mapping or pattern match - cannot determine API provider", modelName)
}

// GetModelInfo returns the ModelInfo for a given model name.
// Returns the info and true if found in KnownModels, or a default info
// with inferred provider and false if not found.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}

	provider := ""
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			provider = ProviderPatterns[i].Provider
			break
		}
	}

	// Conservative defaults for unknown models
	return ModelInfo{
		Provider:         provider,
		InputCPM:         0.0,
		OutputCPM:        0.0,
		MaxContextTokens: 32000,
		MaxOutputTokens:  4096,
	}, false
}

// All constants bundled together for easy maintenance.
const (
	// Retry behavior for a full orchestration attempt.
	MaxRetryAttempts       = 3   // Maximum full-chat retry attempts
	RetryBackoffMultiplier = 2.0 // Exponential backoff multiplier for retries

	// Model name constants.
	ModelClaudeSonnet4      = "claude-sonnet-4-5"
	ModelClaudeSonnet3      = "claude-3-7-sonnet-20250219"
	ModelClaudeSonnetLatest = ModelClaudeSonnet4
	ModelClaudeOpus45       = "claude-opus-4-5"
	ModelClaudeOpusLatest   = ModelClaudeOpus45
	ModelOpenAIO3           = "o3"
	ModelOpenAIO4Mini       = "o4-mini"
	ModelGPT4o              = "gpt-4o"
	ModelGPT5               = "gpt-5"
	ModelGemini3Pro         = "gemini-3-pro-preview"

	DefaultCoderModel    = ModelClaudeSonnet4
	DefaultReviewerModel = ModelGPT5
	DefaultAdminModel    = ModelGemini3Pro

	// Default model for local-only mode, served via Ollama.
	DefaultLocalModel = "mistral-nemo:latest"

	// Provider constants for client selection.
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"

	// API key environment variable names.
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"

	// Project config constants.
	ConfigFilename   = "nbupdater.yaml"
	ProjectConfigDir = ".nbupdater"
	DatabaseFilename = "nbupdater.db"
)

// NotebookConfig locates the working notebook and its seed template.
type NotebookConfig struct {
	Path            string `yaml:"path"`             // Working notebook path
	TemplatePath    string `yaml:"template_path"`    // Starter template, seeded on each retry
	TaskDescription string `yaml:"task_description"` // Substituted into the template
}

// ChatConfig bounds the group chat loop.
type ChatConfig struct {
	MaxRounds        int           `yaml:"max_rounds"`         // Turn limit before giving up on the attempt
	MaxRetries       int           `yaml:"max_retries"`        // Full-chat retry attempts
	MaxContextTokens int           `yaml:"max_context_tokens"` // Compaction threshold for conversation history
	TurnTimeout      time.Duration `yaml:"turn_timeout"`       // Zero disables the per-turn deadline
}

// AgentsConfig selects a model per role. Instructions override the
// built-in role prompts when non-empty.
type AgentsConfig struct {
	CoderModel           string `yaml:"coder_model"`
	ReviewerModel        string `yaml:"reviewer_model"`
	AdminModel           string `yaml:"admin_model"`
	CoderInstructions    string `yaml:"coder_instructions,omitempty"`
	ReviewerInstructions string `yaml:"reviewer_instructions,omitempty"`
	AdminInstructions    string `yaml:"admin_instructions,omitempty"`
}

// RuntimeConfig describes the interpreter used for code cells.
type RuntimeConfig struct {
	Language       string   `yaml:"language"`        // Cell language handled by this runtime (e.g. "python")
	Command        string   `yaml:"command"`         // Interpreter executable
	Args           []string `yaml:"args"`            // Arguments before the cell payload
	TruncateLength int      `yaml:"truncate_length"` // Max chars per output value before truncation
}

// MetricsConfig controls the end-of-run metrics snapshot.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputPath string `yaml:"output_path"` // Text-format snapshot destination
}

// StorageConfig locates the session event database.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// Config is the root configuration for a notebook updater run.
type Config struct {
	Notebook NotebookConfig `yaml:"notebook"`
	Chat     ChatConfig     `yaml:"chat"`
	Agents   AgentsConfig   `yaml:"agents"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Storage  StorageConfig  `yaml:"storage"`
}

// GetAPIKey returns the API key for a provider, checking the decrypted
// secrets file first, then environment variables. For Ollama the host
// URL is returned instead since the local server is keyless.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		host := os.Getenv(EnvOllamaHost)
		if host == "" {
			host = "http://localhost:11434"
		}
		return host, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	key, err := GetSecret(envVar)
	if err != nil || key == "" {
		return "", fmt.Errorf("API key for provider %s not found: set %s or add it to the secrets file", provider, envVar)
	}
	return key, nil
}

// Validate checks that the configuration is usable. Called after
// defaults are applied, so zero values that have defaults never reach it.
func (c *Config) Validate() error {
	if c.Notebook.Path == "" {
		return fmt.Errorf("notebook.path is required")
	}
	if c.Chat.MaxRounds <= 0 {
		return fmt.Errorf("chat.max_rounds must be positive, got %d", c.Chat.MaxRounds)
	}
	if c.Chat.MaxRetries <= 0 {
		return fmt.Errorf("chat.max_retries must be positive, got %d", c.Chat.MaxRetries)
	}
	if c.Runtime.Command == "" {
		return fmt.Errorf("runtime.command is required")
	}
	for role, model := range map[string]string{
		"agents.coder_model":    c.Agents.CoderModel,
		"agents.reviewer_model": c.Agents.ReviewerModel,
		"agents.admin_model":    c.Agents.AdminModel,
	} {
		if model == "" {
			return fmt.Errorf("%s is required", role)
		}
		if _, err := GetModelProvider(model); err != nil {
			return fmt.Errorf("%s: %w", role, err)
		}
	}
	return nil
}
