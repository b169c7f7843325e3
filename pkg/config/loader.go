package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"nbupdater/pkg/logx"
)

// getLogger returns the package logger, initializing it on first use.
//
//nolint:gochecknoglobals // package-level logger mirrors the rest of the codebase
var logger *logx.Logger

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// LoadConfig reads the YAML config file at path, applies defaults, and
// validates the result. A missing file is not an error: the defaults are
// returned so a run can be driven entirely from flags.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		getLogger().Info("Loaded configuration from %s", path)
	case os.IsNotExist(err):
		getLogger().Debug("No config file at %s, using defaults", path)
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

// DefaultConfigPath returns the conventional config location under dir.
func DefaultConfigPath(dir string) string {
	return filepath.Join(dir, ProjectConfigDir, ConfigFilename)
}

func defaultConfig() *Config {
	return &Config{
		Chat: ChatConfig{
			MaxRounds:        40,
			MaxRetries:       MaxRetryAttempts,
			MaxContextTokens: 120000,
		},
		Agents: AgentsConfig{
			CoderModel:    DefaultCoderModel,
			ReviewerModel: DefaultReviewerModel,
			AdminModel:    DefaultAdminModel,
		},
		Runtime: RuntimeConfig{
			Language:       "python",
			Command:        "python3",
			Args:           []string{"-"},
			TruncateLength: 500,
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			OutputPath: filepath.Join(ProjectConfigDir, "metrics.prom"),
		},
		Storage: StorageConfig{
			DBPath: filepath.Join(ProjectConfigDir, DatabaseFilename),
		},
	}
}

// applyDefaults restores defaults for fields the YAML file set to zero
// values, so a partial config file never disables a whole subsystem.
func applyDefaults(cfg *Config) {
	def := defaultConfig()
	if cfg.Chat.MaxRounds == 0 {
		cfg.Chat.MaxRounds = def.Chat.MaxRounds
	}
	if cfg.Chat.MaxRetries == 0 {
		cfg.Chat.MaxRetries = def.Chat.MaxRetries
	}
	if cfg.Chat.MaxContextTokens == 0 {
		cfg.Chat.MaxContextTokens = def.Chat.MaxContextTokens
	}
	if cfg.Agents.CoderModel == "" {
		cfg.Agents.CoderModel = def.Agents.CoderModel
	}
	if cfg.Agents.ReviewerModel == "" {
		cfg.Agents.ReviewerModel = def.Agents.ReviewerModel
	}
	if cfg.Agents.AdminModel == "" {
		cfg.Agents.AdminModel = def.Agents.AdminModel
	}
	if cfg.Runtime.Language == "" {
		cfg.Runtime.Language = def.Runtime.Language
	}
	if cfg.Runtime.Command == "" {
		cfg.Runtime.Command = def.Runtime.Command
		if len(cfg.Runtime.Args) == 0 {
			cfg.Runtime.Args = def.Runtime.Args
		}
	}
	if cfg.Runtime.TruncateLength == 0 {
		cfg.Runtime.TruncateLength = def.Runtime.TruncateLength
	}
	if cfg.Metrics.OutputPath == "" {
		cfg.Metrics.OutputPath = def.Metrics.OutputPath
	}
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = def.Storage.DBPath
	}
}

// applyEnvOverrides lets the environment pin models without editing the
// config file. Useful for one-off runs against a different provider.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NBUPDATER_CODER_MODEL"); v != "" {
		cfg.Agents.CoderModel = v
	}
	if v := os.Getenv("NBUPDATER_REVIEWER_MODEL"); v != "" {
		cfg.Agents.ReviewerModel = v
	}
	if v := os.Getenv("NBUPDATER_ADMIN_MODEL"); v != "" {
		cfg.Agents.AdminModel = v
	}
}
