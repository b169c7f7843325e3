// Command nbupdater drives a multi-agent group chat that iteratively
// edits, executes, and validates a computational notebook until an
// approval agent signs it off.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/term"

	"nbupdater/pkg/agent"
	"nbupdater/pkg/agent/llm"
	"nbupdater/pkg/chat"
	"nbupdater/pkg/config"
	"nbupdater/pkg/kernel"
	"nbupdater/pkg/logx"
	"nbupdater/pkg/metrics"
	"nbupdater/pkg/persistence"
	"nbupdater/pkg/tools"
	"nbupdater/pkg/workbook"
)

var version = "dev"

// Exit codes: 0 approved, 1 failed, 2 round budget exhausted.
const (
	exitApproved  = 0
	exitFailed    = 1
	exitExhausted = 2
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to the YAML config file (default: .nbupdater/nbupdater.yaml)")
		notebook    = flag.String("notebook", "", "Working notebook path (overrides config)")
		template    = flag.String("template", "", "Notebook template path (overrides config)")
		task        = flag.String("task", "", "Task description substituted into the template (overrides config)")
		maxRounds   = flag.Int("rounds", 0, "Round budget per attempt (overrides config)")
		maxRetries  = flag.Int("retries", 0, "Full-run retry attempts (overrides config)")
		initSecrets = flag.Bool("init-secrets", false, "Interactively create the encrypted API key file and exit")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("nbupdater %s\n", version)
		return
	}

	logger := logx.NewLogger("nbupdater")

	if *initSecrets {
		if err := runInitSecrets(); err != nil {
			logger.Error("failed to initialize secrets: %v", err)
			os.Exit(exitFailed)
		}
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config: %v", err)
		os.Exit(exitFailed)
	}
	applyFlagOverrides(cfg, *notebook, *template, *task, *maxRounds, *maxRetries)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration: %v", err)
		os.Exit(exitFailed)
	}

	if err := unlockSecrets(logger); err != nil {
		logger.Error("failed to unlock secrets: %v", err)
		os.Exit(exitFailed)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, logger))
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.DefaultConfigPath(".")
	}
	return config.LoadConfig(path)
}

func applyFlagOverrides(cfg *config.Config, notebook, template, task string, rounds, retries int) {
	if notebook != "" {
		cfg.Notebook.Path = notebook
	}
	if template != "" {
		cfg.Notebook.TemplatePath = template
	}
	if task != "" {
		cfg.Notebook.TaskDescription = task
	}
	if rounds > 0 {
		cfg.Chat.MaxRounds = rounds
	}
	if retries > 0 {
		cfg.Chat.MaxRetries = retries
	}
}

// run executes the notebook update end to end and returns the process
// exit code.
func run(ctx context.Context, cfg *config.Config, logger *logx.Logger) int {
	sessionID := uuid.New().String()
	var ops *persistence.DatabaseOperations
	if cfg.Storage.DBPath != "" {
		if err := persistence.Initialize(cfg.Storage.DBPath, sessionID); err != nil {
			logger.Error("failed to open session database: %v", err)
			return exitFailed
		}
		defer func() {
			if err := persistence.Close(); err != nil {
				logger.Warn("failed to close session database: %v", err)
			}
		}()
		ops = persistence.Ops()
	}

	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder()
		defer func() {
			if err := recorder.WriteSnapshot(cfg.Metrics.OutputPath); err != nil {
				logger.Warn("failed to write metrics snapshot: %v", err)
			}
		}()
	}

	clients, err := buildClients(cfg, logger)
	if err != nil {
		logger.Error("failed to build LLM clients: %v", err)
		return exitFailed
	}

	updater, err := chat.NewUpdater(chat.UpdaterConfig{
		NotebookPath:    cfg.Notebook.Path,
		TemplatePath:    cfg.Notebook.TemplatePath,
		TaskDescription: cfg.Notebook.TaskDescription,
		MaxRetries:      cfg.Chat.MaxRetries,
		NewChat:         chatFactory(cfg, clients, logger, recorder, ops),
		Logger:          logger,
		Ops:             ops,
	})
	if err != nil {
		logger.Error("failed to build updater: %v", err)
		return exitFailed
	}

	approved, err := updater.Run(ctx)
	switch {
	case err != nil:
		logger.Error("notebook update failed: %v", err)
		return exitFailed
	case !approved:
		logger.Warn("notebook was not approved within the round budget")
		return exitExhausted
	default:
		logger.Info("notebook approved: %s", cfg.Notebook.Path)
		return exitApproved
	}
}

// roleClients holds one LLM client per conversational role. Clients are
// stateless and shared across retry attempts.
type roleClients struct {
	coder    llm.LLMClient
	reviewer llm.LLMClient
	admin    llm.LLMClient
}

func buildClients(cfg *config.Config, logger *logx.Logger) (*roleClients, error) {
	coder, err := agent.NewClient(cfg.Agents.CoderModel, logger.WithAgentID("coder"))
	if err != nil {
		return nil, logx.Wrap(err, "coder client")
	}
	reviewer, err := agent.NewClient(cfg.Agents.ReviewerModel, logger.WithAgentID("reviewer"))
	if err != nil {
		return nil, logx.Wrap(err, "reviewer client")
	}
	admin, err := agent.NewClient(cfg.Agents.AdminModel, logger.WithAgentID("admin"))
	if err != nil {
		return nil, logx.Wrap(err, "admin client")
	}
	return &roleClients{coder: coder, reviewer: reviewer, admin: admin}, nil
}

// chatFactory builds a fresh group chat per attempt. Gates, engines,
// and interaction cores are attempt-scoped; clients are reused.
func chatFactory(cfg *config.Config, clients *roleClients, logger *logx.Logger, recorder *metrics.Recorder, ops *persistence.DatabaseOperations) chat.ChatFactory {
	return func() (*chat.GroupChat, error) {
		gates := &workbook.Gates{}

		coderCore := newInteraction(cfg, gates, recorder, logger.WithAgentID("coder"))
		reviewerCore := newInteraction(cfg, gates, recorder, logger.WithAgentID("reviewer"))
		adminCore := newInteraction(cfg, gates, recorder, logger.WithAgentID("admin"))

		agents := []*chat.Agent{
			chat.NewAgent(chat.CoderAgentName, cfg.Agents, clients.coder,
				tools.ForUpdater(workbook.NewUpdateService(coderCore))),
			chat.NewAgent(chat.ReviewerAgentName, cfg.Agents, clients.reviewer,
				tools.ForSupervisor(workbook.NewSupervisionService(reviewerCore))),
			chat.NewAgent(chat.AdminAgentName, cfg.Agents, clients.admin,
				tools.ForValidator(workbook.NewValidationService(adminCore))),
		}

		return chat.NewGroupChat(&chat.GroupChatConfig{
			Agents:           agents,
			Gates:            gates,
			MaxRounds:        cfg.Chat.MaxRounds,
			MaxContextTokens: cfg.Chat.MaxContextTokens,
			TurnTimeout:      cfg.Chat.TurnTimeout,
			Logger:           logger,
			Recorder:         recorder,
			Ops:              ops,
		})
	}
}

func newInteraction(cfg *config.Config, gates *workbook.Gates, recorder *metrics.Recorder, logger *logx.Logger) *workbook.Interaction {
	engine := kernel.NewEngine(runtimeFactory(cfg.Runtime), cfg.Runtime.Language, logger)
	if cfg.Runtime.TruncateLength > 0 {
		engine.TruncationLength = cfg.Runtime.TruncateLength
	}
	core := workbook.NewInteraction(cfg.Notebook.Path, engine, gates, logger)
	core.SetRecorder(recorder)
	return core
}

// runtimeFactory prefers the configured interpreter for its language
// and falls back to the built-in interpreter table for anything else.
func runtimeFactory(rc config.RuntimeConfig) kernel.RuntimeFactory {
	return func(language string) (kernel.Runtime, error) {
		if rc.Command != "" && strings.EqualFold(language, rc.Language) {
			return kernel.NewProcessRuntime(language, append([]string{rc.Command}, rc.Args...))
		}
		return kernel.ProcessRuntimeFactory(language)
	}
}

// unlockSecrets decrypts the encrypted API key file when one exists,
// taking the password from NBUPDATER_SECRETS_PASSWORD or an interactive
// prompt.
func unlockSecrets(logger *logx.Logger) error {
	if !config.SecretsFileExists(".") {
		return nil
	}
	password := os.Getenv("NBUPDATER_SECRETS_PASSWORD")
	if password == "" {
		var err error
		password, err = promptPassword("Secrets password: ")
		if err != nil {
			return err
		}
	}
	secrets, err := config.DecryptSecretsFile(".", password)
	if err != nil {
		return err
	}
	config.SetDecryptedSecrets(secrets)
	logger.Info("unlocked %d secrets", len(secrets))
	return nil
}

// runInitSecrets interactively collects API keys and writes the
// encrypted secrets file.
func runInitSecrets() error {
	password, err := promptPassword("New secrets password: ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	secrets := make(map[string]string)
	for _, envVar := range []string{config.EnvAnthropicAPIKey, config.EnvOpenAIAPIKey, config.EnvGoogleAPIKey} {
		value, err := promptPassword(fmt.Sprintf("%s (empty to skip): ", envVar))
		if err != nil {
			return err
		}
		if value != "" {
			secrets[envVar] = value
		}
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no API keys entered")
	}

	if err := config.EncryptSecretsFile(".", password, secrets); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", filepath.Join(config.ProjectConfigDir, "secrets.json.enc"))
	return nil
}

// promptPassword reads a line without echo when stdin is a terminal,
// falling back to a plain line read otherwise.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
