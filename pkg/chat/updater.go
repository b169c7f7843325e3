package chat

import (
	"context"
	"fmt"
	"os"

	"nbupdater/pkg/config"
	"nbupdater/pkg/logx"
	"nbupdater/pkg/notebook"
	"nbupdater/pkg/persistence"
)

// ChatFactory builds a fresh group chat with empty history. The updater
// calls it once per attempt so a retried run starts clean.
type ChatFactory func() (*GroupChat, error)

// UpdaterConfig carries the inputs for a notebook update run. Ops is
// optional; nil disables session persistence.
type UpdaterConfig struct {
	NotebookPath    string
	TemplatePath    string
	TaskDescription string
	MaxRetries      int
	NewChat         ChatFactory
	Logger          *logx.Logger
	Ops             *persistence.DatabaseOperations
}

// Updater seeds the notebook from its template and runs the group chat,
// retrying from a fresh notebook when a run fails outright.
type Updater struct {
	cfg    UpdaterConfig
	logger *logx.Logger
}

// NewUpdater validates the configuration and builds the updater.
func NewUpdater(cfg UpdaterConfig) (*Updater, error) {
	if cfg.NotebookPath == "" {
		return nil, fmt.Errorf("updater requires a notebook path")
	}
	if cfg.NewChat == nil {
		return nil, fmt.Errorf("updater requires a chat factory")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = config.MaxRetryAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logx.NewLogger("updater")
	}
	return &Updater{cfg: cfg, logger: logger}, nil
}

// Run performs the notebook update. It returns whether the notebook was
// approved; a false result with nil error means the round budget ran
// out. Only failed runs are retried, each from a freshly seeded
// notebook; the final attempt's error is returned on exhaustion.
func (u *Updater) Run(ctx context.Context) (bool, error) {
	var lastErr error
	for attempt := 1; attempt <= u.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		approved, err := u.runOnce(ctx, attempt)
		if err == nil {
			return approved, nil
		}
		lastErr = err
		u.logger.Warn("update attempt %d/%d failed: %v", attempt, u.cfg.MaxRetries, err)
	}
	return false, logx.Wrap(lastErr, fmt.Sprintf("notebook update failed after %d attempts", u.cfg.MaxRetries))
}

func (u *Updater) runOnce(ctx context.Context, attempt int) (bool, error) {
	if err := u.seedNotebook(attempt); err != nil {
		return false, err
	}

	if u.cfg.Ops != nil {
		if err := u.cfg.Ops.StartSession(u.cfg.NotebookPath, u.cfg.TaskDescription, attempt); err != nil {
			u.logger.Warn("failed to persist session start: %v", err)
		}
	}

	chat, err := u.cfg.NewChat()
	if err != nil {
		return false, err
	}

	seed, err := seedMessage(u.cfg.NotebookPath)
	if err != nil {
		return false, err
	}

	approved, runErr := chat.Run(ctx, seed)
	u.finishSession(chat, approved, runErr)
	return approved, runErr
}

// seedNotebook prepares the working notebook for an attempt. The first
// attempt keeps an existing notebook; retries discard it and start over
// from the template.
func (u *Updater) seedNotebook(attempt int) error {
	if attempt == 1 {
		return notebook.SeedFromTemplate(u.cfg.NotebookPath, u.cfg.TemplatePath, u.cfg.TaskDescription)
	}
	u.logger.Info("attempt %d: reseeding notebook from template", attempt)
	return notebook.ResetFromTemplate(u.cfg.NotebookPath, u.cfg.TemplatePath, u.cfg.TaskDescription)
}

func (u *Updater) finishSession(chat *GroupChat, approved bool, runErr error) {
	if u.cfg.Ops == nil {
		return
	}
	outcome := persistence.OutcomeExhausted
	switch {
	case runErr != nil:
		outcome = persistence.OutcomeFailed
	case approved:
		outcome = persistence.OutcomeApproved
	}
	if err := u.cfg.Ops.FinishSession(outcome, chat.State().Round()); err != nil {
		u.logger.Warn("failed to persist session outcome: %v", err)
	}
}

// seedMessage builds the opening user prompt, embedding the current
// notebook JSON so every agent starts from the same document.
func seedMessage(notebookPath string) (string, error) {
	raw, err := os.ReadFile(notebookPath)
	if err != nil {
		return "", logx.Wrap(err, "failed to read notebook for the seed prompt")
	}
	return fmt.Sprintf("\nHere is the starting notebook:\n%s\n"+
		"Ensure that the workbook is thoroughly tested, documented, and cleaned "+
		"before calling the 'ApproveNotebook' function.", string(raw)), nil
}
