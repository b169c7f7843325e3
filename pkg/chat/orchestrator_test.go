package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nbupdater/pkg/agent"
	"nbupdater/pkg/agent/llm"
	"nbupdater/pkg/config"
	"nbupdater/pkg/tools"
	"nbupdater/pkg/workbook"
)

// fakeTool is a scriptable tool for chat-level tests. Exec runs the
// action and returns the canned result content.
type fakeTool struct {
	name    string
	result  string
	execErr error
	action  func()
	calls   int
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        f.name,
		Description: "test tool",
		InputSchema: tools.InputSchema{Type: "object", Properties: map[string]tools.Property{}},
	}
}

func (f *fakeTool) PromptDocumentation() string { return "- " + f.name }

func (f *fakeTool) Exec(_ context.Context, _ map[string]any) (*tools.ExecResult, error) {
	f.calls++
	if f.execErr != nil {
		return nil, f.execErr
	}
	if f.action != nil {
		f.action()
	}
	return &tools.ExecResult{Content: f.result}, nil
}

func textResponse(content string) llm.CompletionResponse {
	return llm.CompletionResponse{Content: content, StopReason: "end_turn"}
}

func toolCallResponse(name string) llm.CompletionResponse {
	return llm.CompletionResponse{
		ToolCalls:  []llm.ToolCall{{ID: "call_1", Name: name, Parameters: map[string]any{}}},
		StopReason: "tool_use",
	}
}

func testAgent(name string, client llm.LLMClient, toolList ...tools.Tool) *Agent {
	return &Agent{
		Name:         name,
		Instructions: instructionsFor(name, config.AgentsConfig{}),
		Client:       client,
		Tools:        tools.NewProvider(toolList...),
	}
}

func newTestChat(t *testing.T, gates *workbook.Gates, maxRounds int, coder, reviewer, admin *Agent) *GroupChat {
	t.Helper()
	chat, err := NewGroupChat(&GroupChatConfig{
		Agents:    []*Agent{coder, reviewer, admin},
		Gates:     gates,
		MaxRounds: maxRounds,
	})
	require.NoError(t, err)
	return chat
}

func agentTurnAuthors(state *State) []string {
	var authors []string
	for _, e := range state.History() {
		if e.Author == UserAuthor || e.Author == ToolAuthor {
			continue
		}
		authors = append(authors, e.Author)
	}
	return authors
}

func TestCoderAndReviewerAlternate(t *testing.T) {
	gates := &workbook.Gates{}
	coder := testAgent(CoderAgentName, agent.NewMockLLMClient([]llm.CompletionResponse{
		textResponse("updated the cell"),
		textResponse("addressed the feedback"),
	}, nil))
	reviewer := testAgent(ReviewerAgentName, agent.NewMockLLMClient([]llm.CompletionResponse{
		textResponse("please add tests"),
		textResponse("looks good now"),
	}, nil))
	admin := testAgent(AdminAgentName, agent.NewMockLLMClient(nil, nil))

	chat := newTestChat(t, gates, 4, coder, reviewer, admin)
	approved, err := chat.Run(context.Background(), "seed")
	require.NoError(t, err)
	assert.False(t, approved)

	assert.Equal(t, []string{
		CoderAgentName, ReviewerAgentName, CoderAgentName, ReviewerAgentName,
	}, agentTurnAuthors(chat.State()))
}

func TestPendingApprovalRoutesToAdmin(t *testing.T) {
	gates := &workbook.Gates{}
	submit := &fakeTool{
		name:   tools.ToolSubmitNotebook,
		result: "Notebook submitted for approval.",
		action: func() { gates.PendingApproval = true },
	}
	approve := &fakeTool{
		name:   tools.ToolApproveNotebook,
		result: "Notebook approved.",
		action: func() { gates.Approved = true },
	}

	coder := testAgent(CoderAgentName, agent.NewMockLLMClient([]llm.CompletionResponse{
		toolCallResponse(tools.ToolSubmitNotebook),
		textResponse("submitted, over to Admin_Agent"),
	}, nil), submit)
	reviewer := testAgent(ReviewerAgentName, agent.NewMockLLMClient(nil, nil))
	admin := testAgent(AdminAgentName, agent.NewMockLLMClient([]llm.CompletionResponse{
		toolCallResponse(tools.ToolApproveNotebook),
		textResponse("approved"),
	}, nil), approve)

	chat := newTestChat(t, gates, 10, coder, reviewer, admin)
	approved, err := chat.Run(context.Background(), "seed")
	require.NoError(t, err)
	assert.True(t, approved)

	// The reviewer never speaks: submission routes straight to the admin.
	assert.Equal(t, []string{CoderAgentName, AdminAgentName}, agentTurnAuthors(chat.State()))
	assert.Equal(t, 1, submit.calls)
	assert.Equal(t, 1, approve.calls)
	assert.Equal(t, 2, chat.State().Round())
}

func TestRoundBudgetEndsRunWithoutError(t *testing.T) {
	gates := &workbook.Gates{}
	responses := []llm.CompletionResponse{
		textResponse("a"), textResponse("b"), textResponse("c"),
	}
	coder := testAgent(CoderAgentName, agent.NewMockLLMClient(responses, nil))
	reviewer := testAgent(ReviewerAgentName, agent.NewMockLLMClient(responses, nil))
	admin := testAgent(AdminAgentName, agent.NewMockLLMClient(nil, nil))

	chat := newTestChat(t, gates, 3, coder, reviewer, admin)
	approved, err := chat.Run(context.Background(), "seed")
	require.NoError(t, err)
	assert.False(t, approved)
	assert.Equal(t, 3, chat.State().Round())
}

func TestUnknownToolProducesErrorResultNotFailure(t *testing.T) {
	gates := &workbook.Gates{}
	coder := testAgent(CoderAgentName, agent.NewMockLLMClient([]llm.CompletionResponse{
		toolCallResponse("DeleteEverything"),
		textResponse("that tool does not exist, moving on"),
	}, nil))
	reviewer := testAgent(ReviewerAgentName, agent.NewMockLLMClient([]llm.CompletionResponse{
		textResponse("noted"),
	}, nil))
	admin := testAgent(AdminAgentName, agent.NewMockLLMClient(nil, nil))

	chat := newTestChat(t, gates, 2, coder, reviewer, admin)
	_, err := chat.Run(context.Background(), "seed")
	require.NoError(t, err)

	var toolEntry string
	for _, e := range chat.State().History() {
		if e.Author == ToolAuthor {
			toolEntry = e.Content
		}
	}
	assert.Contains(t, toolEntry, "Result of DeleteEverything")
	assert.Contains(t, toolEntry, "Error")
}

func TestToolExecFailureFailsTheRun(t *testing.T) {
	gates := &workbook.Gates{}
	broken := &fakeTool{name: tools.ToolRunNotebook, execErr: assert.AnError}
	coder := testAgent(CoderAgentName, agent.NewMockLLMClient([]llm.CompletionResponse{
		toolCallResponse(tools.ToolRunNotebook),
	}, nil), broken)
	reviewer := testAgent(ReviewerAgentName, agent.NewMockLLMClient(nil, nil))
	admin := testAgent(AdminAgentName, agent.NewMockLLMClient(nil, nil))

	chat := newTestChat(t, gates, 5, coder, reviewer, admin)
	_, err := chat.Run(context.Background(), "seed")
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestToolRoundCapEndsTurn(t *testing.T) {
	gates := &workbook.Gates{}
	run := &fakeTool{name: tools.ToolRunNotebook, result: "ran"}
	responses := make([]llm.CompletionResponse, 0, maxToolRounds+1)
	for i := 0; i <= maxToolRounds; i++ {
		responses = append(responses, toolCallResponse(tools.ToolRunNotebook))
	}
	client := agent.NewMockLLMClient(responses, nil)
	coder := testAgent(CoderAgentName, client, run)
	reviewer := testAgent(ReviewerAgentName, agent.NewMockLLMClient([]llm.CompletionResponse{
		textResponse("noted"),
	}, nil))
	admin := testAgent(AdminAgentName, agent.NewMockLLMClient(nil, nil))

	chat := newTestChat(t, gates, 2, coder, reviewer, admin)
	_, err := chat.Run(context.Background(), "seed")
	require.NoError(t, err)

	assert.Equal(t, maxToolRounds, run.calls)
	assert.Len(t, client.Requests, maxToolRounds)

	history := chat.State().History()
	var coderFinal string
	for _, e := range history {
		if e.Author == CoderAgentName {
			coderFinal = e.Content
		}
	}
	assert.Contains(t, coderFinal, "Tool budget")
}

func TestSystemPromptCarriesRoleInstructions(t *testing.T) {
	gates := &workbook.Gates{}
	client := agent.NewMockLLMClient([]llm.CompletionResponse{textResponse("ok")}, nil)
	coder := testAgent(CoderAgentName, client, &fakeTool{name: "replace_cell"})
	reviewer := testAgent(ReviewerAgentName, agent.NewMockLLMClient(nil, nil))
	admin := testAgent(AdminAgentName, agent.NewMockLLMClient(nil, nil))

	chat := newTestChat(t, gates, 1, coder, reviewer, admin)
	_, err := chat.Run(context.Background(), "do the thing")
	require.NoError(t, err)

	require.Len(t, client.Requests, 1)
	msgs := client.Requests[0].Messages
	require.NotEmpty(t, msgs)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Coder agent")
	assert.Contains(t, msgs[0].Content, "Tool usage:")
	// Each tool's own documentation follows the shared usage rules.
	assert.Contains(t, msgs[0].Content, "Your tools:")
	assert.Contains(t, msgs[0].Content, "- replace_cell")
	// The seed prompt arrives as the first user message, un-prefixed.
	require.Greater(t, len(msgs), 1)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Equal(t, "do the thing", msgs[1].Content)
}

func TestOtherAgentsSpeechIsPrefixedWithAuthor(t *testing.T) {
	gates := &workbook.Gates{}
	coder := testAgent(CoderAgentName, agent.NewMockLLMClient([]llm.CompletionResponse{
		textResponse("updated the cell"),
	}, nil))
	reviewerClient := agent.NewMockLLMClient([]llm.CompletionResponse{textResponse("ok")}, nil)
	reviewer := testAgent(ReviewerAgentName, reviewerClient)
	admin := testAgent(AdminAgentName, agent.NewMockLLMClient(nil, nil))

	chat := newTestChat(t, gates, 2, coder, reviewer, admin)
	_, err := chat.Run(context.Background(), "seed")
	require.NoError(t, err)

	require.Len(t, reviewerClient.Requests, 1)
	found := false
	for _, m := range reviewerClient.Requests[0].Messages {
		if strings.HasPrefix(m.Content, CoderAgentName+": ") {
			found = true
			assert.Equal(t, llm.RoleUser, m.Role)
		}
	}
	assert.True(t, found, "expected the coder's message prefixed with its name")
}

func TestMissingRoleRejected(t *testing.T) {
	_, err := NewGroupChat(&GroupChatConfig{
		Agents: []*Agent{
			testAgent(CoderAgentName, agent.NewMockLLMClient(nil, nil)),
		},
		Gates:     &workbook.Gates{},
		MaxRounds: 5,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ReviewerAgentName)
}
