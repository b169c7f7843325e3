package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"nbupdater/pkg/agent/llm"
	"nbupdater/pkg/config"
	"nbupdater/pkg/contextmgr"
	"nbupdater/pkg/logx"
	"nbupdater/pkg/metrics"
	"nbupdater/pkg/persistence"
	"nbupdater/pkg/tools"
	"nbupdater/pkg/workbook"
)

// maxToolRounds bounds consecutive tool-call rounds within one turn.
// Matches the limit the agents are told about in their instructions.
const maxToolRounds = 5

// Agent binds one conversational role to its model client and tool set.
type Agent struct {
	Name         string
	Instructions string
	Client       llm.LLMClient
	Tools        *tools.Provider
}

// NewAgent builds the named role's agent, taking its system prompt from
// the built-in role instructions unless the configuration overrides it.
func NewAgent(name string, agents config.AgentsConfig, client llm.LLMClient, provider *tools.Provider) *Agent {
	return &Agent{
		Name:         name,
		Instructions: instructionsFor(name, agents),
		Client:       client,
		Tools:        provider,
	}
}

// GroupChatConfig carries everything a group chat needs. Recorder and
// Ops are optional; nil disables metrics and persistence respectively.
type GroupChatConfig struct {
	Agents           []*Agent
	Gates            *workbook.Gates
	MaxRounds        int
	MaxContextTokens int
	TurnTimeout      time.Duration
	Logger           *logx.Logger
	Recorder         *metrics.Recorder
	Ops              *persistence.DatabaseOperations
}

// GroupChat schedules turns between the agents until the notebook is
// approved or the round budget runs out.
type GroupChat struct {
	agents      []*Agent
	byName      map[string]*Agent
	gates       *workbook.Gates
	state       *State
	window      *contextmgr.ContextManager
	maxRounds   int
	turnTimeout time.Duration
	logger      *logx.Logger
	recorder    *metrics.Recorder
	ops         *persistence.DatabaseOperations
}

// NewGroupChat validates the configuration and builds the orchestrator.
// The coder, reviewer, and admin roles must all be present.
func NewGroupChat(cfg *GroupChatConfig) (*GroupChat, error) {
	if cfg.Gates == nil {
		return nil, fmt.Errorf("group chat requires shared gates")
	}
	if cfg.MaxRounds <= 0 {
		return nil, fmt.Errorf("group chat requires a positive round budget, got %d", cfg.MaxRounds)
	}
	byName := make(map[string]*Agent, len(cfg.Agents))
	for _, a := range cfg.Agents {
		if a.Client == nil {
			return nil, fmt.Errorf("agent %s has no LLM client", a.Name)
		}
		byName[a.Name] = a
	}
	for _, required := range []string{CoderAgentName, ReviewerAgentName, AdminAgentName} {
		if _, ok := byName[required]; !ok {
			return nil, fmt.Errorf("group chat is missing the %s role", required)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logx.NewLogger("chat")
	}
	var window *contextmgr.ContextManager
	if cfg.MaxContextTokens > 0 {
		window = contextmgr.NewContextManager(byName[CoderAgentName].Client.GetModelName(), cfg.MaxContextTokens)
	}
	return &GroupChat{
		agents:      cfg.Agents,
		byName:      byName,
		gates:       cfg.Gates,
		state:       NewState(),
		window:      window,
		maxRounds:   cfg.MaxRounds,
		turnTimeout: cfg.TurnTimeout,
		logger:      logger,
		recorder:    cfg.Recorder,
		ops:         cfg.Ops,
	}, nil
}

// State exposes the conversation history, mainly for inspection after a
// run and for tests.
func (g *GroupChat) State() *State {
	return g.state
}

// nextAgent picks the speaker for the coming turn. A pending submission
// always routes to the validator; otherwise the editor and reviewer
// alternate, editor first.
func (g *GroupChat) nextAgent() *Agent {
	if g.gates.PendingApproval {
		return g.byName[AdminAgentName]
	}
	if g.state.LastAgentAuthor() == CoderAgentName {
		return g.byName[ReviewerAgentName]
	}
	return g.byName[CoderAgentName]
}

// Run drives the conversation from the given seed prompt. It returns
// true when the validator approved the notebook, and false without
// error when the round budget ran out first.
func (g *GroupChat) Run(ctx context.Context, seed string) (bool, error) {
	g.append(UserAuthor, string(llm.RoleUser), seed)

	for g.state.Round() < g.maxRounds {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		round := g.state.NextRound()
		agent := g.nextAgent()
		g.logger.Info("round %d: %s speaking", round, agent.Name)

		err := g.runTurn(ctx, agent)
		if g.recorder != nil {
			g.recorder.ObserveTurn(agent.Name, err)
			g.recorder.SetRounds(round)
		}
		if err != nil {
			return false, logx.Wrap(err, fmt.Sprintf("turn %d (%s) failed", round, agent.Name))
		}

		if g.gates.Approved {
			g.logger.Info("notebook approved after %d rounds", round)
			return true, nil
		}
	}

	g.logger.Warn("round budget of %d exhausted without approval", g.maxRounds)
	return false, nil
}

// runTurn applies the per-turn deadline, when configured, around one
// agent turn.
func (g *GroupChat) runTurn(ctx context.Context, agent *Agent) error {
	if g.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.turnTimeout)
		defer cancel()
	}
	return g.takeTurn(ctx, agent)
}

// takeTurn runs one agent turn: completion, tool execution rounds, and
// the closing chat message, all appended to the shared history.
func (g *GroupChat) takeTurn(ctx context.Context, agent *Agent) error {
	base := g.baseMessages(agent)
	var turn []llm.CompletionMessage

	for toolRound := 0; toolRound < maxToolRounds; toolRound++ {
		req := llm.NewCompletionRequest(append(base, turn...))
		req.Tools = agent.Tools.Definitions()

		start := time.Now()
		resp, err := agent.Client.Complete(ctx, req)
		if g.recorder != nil {
			g.recorder.ObserveLLMDuration(agent.Client.GetModelName(), time.Since(start))
		}
		if err != nil {
			return err
		}

		if len(resp.ToolCalls) == 0 {
			g.append(agent.Name, string(llm.RoleAssistant), resp.Content)
			return nil
		}

		results, err := g.execTools(ctx, agent, resp.ToolCalls)
		if err != nil {
			return err
		}
		if resp.Content != "" {
			g.append(agent.Name, string(llm.RoleAssistant), resp.Content)
		}
		turn = append(turn,
			llm.CompletionMessage{
				Role:      llm.RoleAssistant,
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
			},
			toolResultMessage(results),
		)
	}

	g.append(agent.Name, string(llm.RoleAssistant),
		"Tool budget for this turn is exhausted; summarizing and yielding the turn.")
	return nil
}

// baseMessages renders the shared history into the completion message
// list for one agent: its system prompt first, then each history entry
// as assistant (own) or user (everyone else) speech.
func (g *GroupChat) baseMessages(agent *Agent) []llm.CompletionMessage {
	system := GeneralInstructions + "\n\n" + agent.Instructions + "\n\n" + ToolsUsageInstructions
	if docs := agent.Tools.PromptDocumentation(); docs != "" {
		system += "\n\nYour tools:\n" + docs
	}
	msgs := []llm.CompletionMessage{llm.NewSystemMessage(system)}

	for _, m := range g.windowedHistory() {
		if m.Role == agent.Name {
			msgs = append(msgs, llm.CompletionMessage{Role: llm.RoleAssistant, Content: m.Content})
			continue
		}
		content := m.Content
		if m.Role != UserAuthor {
			content = m.Role + ": " + content
		}
		msgs = append(msgs, llm.NewUserMessage(content))
	}
	return msgs
}

// windowedHistory returns the LLM-facing view of the history, compacted
// to the token budget when one is set. The context manager stores the
// entry author in its role field.
func (g *GroupChat) windowedHistory() []contextmgr.Message {
	if g.window != nil {
		g.window.CompactIfNeeded()
		return g.window.GetMessages()
	}
	msgs := make([]contextmgr.Message, 0, g.state.Len())
	for _, e := range g.state.History() {
		msgs = append(msgs, contextmgr.Message{Role: e.Author, Content: e.Content})
	}
	return msgs
}

// execTools runs every requested tool call through the agent's provider
// and appends each result string to the shared history. A tool that is
// not in the agent's set produces an error result for the model rather
// than failing the run; a broken run (non-nil Exec error) does fail it.
func (g *GroupChat) execTools(ctx context.Context, agent *Agent, calls []llm.ToolCall) ([]llm.ToolResult, error) {
	results := make([]llm.ToolResult, 0, len(calls))
	for _, call := range calls {
		content, isError, err := g.execOne(ctx, agent, call)
		if err != nil {
			return nil, err
		}
		g.append(ToolAuthor, string(llm.RoleUser), fmt.Sprintf("Result of %s:\n%s", call.Name, content))
		if g.recorder != nil {
			g.recorder.ObserveToolCall(call.Name, isError)
		}
		if g.ops != nil {
			args, _ := json.Marshal(call.Parameters)
			if dberr := g.ops.RecordToolCall(g.state.Round(), agent.Name, call.Name, string(args), content, isError); dberr != nil {
				g.logger.Warn("failed to persist tool call %s: %v", call.Name, dberr)
			}
		}
		results = append(results, llm.ToolResult{
			ToolCallID: call.ID,
			Content:    content,
			IsError:    isError,
		})
	}
	return results, nil
}

func (g *GroupChat) execOne(ctx context.Context, agent *Agent, call llm.ToolCall) (content string, isError bool, err error) {
	tool, err := agent.Tools.Get(call.Name)
	if err != nil {
		g.logger.Warn("%s requested unavailable tool %s", agent.Name, call.Name)
		return fmt.Sprintf("Error: %v", err), true, nil
	}
	g.logger.Debug("%s calling %s", agent.Name, call.Name)
	res, err := tool.Exec(ctx, call.Parameters)
	if err != nil {
		return "", false, logx.Wrap(err, fmt.Sprintf("tool %s failed", call.Name))
	}
	return res.Content, strings.HasPrefix(res.Content, "Error"), nil
}

// append records an entry in the shared history and mirrors it into the
// context window and the session database.
func (g *GroupChat) append(author, role, content string) {
	e := g.state.Append(author, role, content)
	if g.window != nil {
		g.window.AddMessage(author, content)
	}
	if g.ops != nil {
		if _, err := g.ops.RecordTurn(e.Round, author, role, content); err != nil {
			g.logger.Warn("failed to persist turn: %v", err)
		}
	}
}

// toolResultMessage packs executed tool results into one user-role
// message. Content always carries the text rendering so providers
// without structured tool results still see the outcomes.
func toolResultMessage(results []llm.ToolResult) llm.CompletionMessage {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(r.Content)
	}
	return llm.CompletionMessage{
		Role:        llm.RoleUser,
		Content:     b.String(),
		ToolResults: results,
	}
}
