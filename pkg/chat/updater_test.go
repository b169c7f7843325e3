package chat

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nbupdater/pkg/agent"
	"nbupdater/pkg/agent/llm"
	"nbupdater/pkg/tools"
	"nbupdater/pkg/workbook"
)

// approvingChat builds a chat whose admin approves on the second round.
func approvingChat(gates *workbook.Gates) *GroupChat {
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
	chat, _ := NewGroupChat(&GroupChatConfig{
		Agents: []*Agent{
			testAgent(CoderAgentName, agent.NewMockLLMClient([]llm.CompletionResponse{
				toolCallResponse(tools.ToolSubmitNotebook),
				textResponse("submitted"),
			}, nil), submit),
			testAgent(ReviewerAgentName, agent.NewMockLLMClient(nil, nil)),
			testAgent(AdminAgentName, agent.NewMockLLMClient([]llm.CompletionResponse{
				toolCallResponse(tools.ToolApproveNotebook),
				textResponse("approved"),
			}, nil), approve),
		},
		Gates:     gates,
		MaxRounds: 10,
	})
	return chat
}

func failingChat() *GroupChat {
	chat, _ := NewGroupChat(&GroupChatConfig{
		Agents: []*Agent{
			testAgent(CoderAgentName, agent.NewMockLLMClient(nil, []error{assert.AnError})),
			testAgent(ReviewerAgentName, agent.NewMockLLMClient(nil, nil)),
			testAgent(AdminAgentName, agent.NewMockLLMClient(nil, nil)),
		},
		Gates:     &workbook.Gates{},
		MaxRounds: 10,
	})
	return chat
}

func stalledChat() *GroupChat {
	chat, _ := NewGroupChat(&GroupChatConfig{
		Agents: []*Agent{
			testAgent(CoderAgentName, agent.NewMockLLMClient([]llm.CompletionResponse{
				textResponse("still working"),
			}, nil)),
			testAgent(ReviewerAgentName, agent.NewMockLLMClient(nil, nil)),
			testAgent(AdminAgentName, agent.NewMockLLMClient(nil, nil)),
		},
		Gates:     &workbook.Gates{},
		MaxRounds: 1,
	})
	return chat
}

func TestUpdaterApprovesOnFirstAttempt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "work.ipynb")
	factoryCalls := 0

	u, err := NewUpdater(UpdaterConfig{
		NotebookPath:    path,
		TaskDescription: "compute primes",
		MaxRetries:      3,
		NewChat: func() (*GroupChat, error) {
			factoryCalls++
			return approvingChat(&workbook.Gates{}), nil
		},
	})
	require.NoError(t, err)

	approved, err := u.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Equal(t, 1, factoryCalls)

	// The notebook was seeded with the task description substituted in.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "compute primes")
	assert.NotContains(t, string(raw), "{{TASK_DESCRIPTION}}")
}

func TestUpdaterRetriesFailedRunFromFreshNotebook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "work.ipynb")
	factoryCalls := 0

	u, err := NewUpdater(UpdaterConfig{
		NotebookPath:    path,
		TaskDescription: "compute primes",
		MaxRetries:      3,
		NewChat: func() (*GroupChat, error) {
			factoryCalls++
			if factoryCalls == 1 {
				return failingChat(), nil
			}
			return approvingChat(&workbook.Gates{}), nil
		},
	})
	require.NoError(t, err)

	approved, err := u.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Equal(t, 2, factoryCalls)
}

func TestUpdaterReturnsFinalErrorWhenExhausted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "work.ipynb")
	factoryCalls := 0

	u, err := NewUpdater(UpdaterConfig{
		NotebookPath: path,
		MaxRetries:   2,
		NewChat: func() (*GroupChat, error) {
			factoryCalls++
			return failingChat(), nil
		},
	})
	require.NoError(t, err)

	approved, err := u.Run(context.Background())
	require.Error(t, err)
	assert.False(t, approved)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 2, factoryCalls)
}

func TestUpdaterDoesNotRetryRoundBudgetExhaustion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "work.ipynb")
	factoryCalls := 0

	u, err := NewUpdater(UpdaterConfig{
		NotebookPath: path,
		MaxRetries:   3,
		NewChat: func() (*GroupChat, error) {
			factoryCalls++
			return stalledChat(), nil
		},
	})
	require.NoError(t, err)

	approved, err := u.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, approved)
	assert.Equal(t, 1, factoryCalls)
}

func TestUpdaterRequiresNotebookPathAndFactory(t *testing.T) {
	_, err := NewUpdater(UpdaterConfig{NewChat: func() (*GroupChat, error) { return nil, nil }})
	require.Error(t, err)

	_, err = NewUpdater(UpdaterConfig{NotebookPath: "x.ipynb"})
	require.Error(t, err)
}

func TestSeedMessageEmbedsNotebookJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "work.ipynb")
	require.NoError(t, os.WriteFile(path, []byte(`{"cells": []}`), 0o644))

	msg, err := seedMessage(path)
	require.NoError(t, err)
	assert.Contains(t, msg, "Here is the starting notebook:")
	assert.Contains(t, msg, `{"cells": []}`)
	assert.Contains(t, msg, "'ApproveNotebook'")
}
