package ollama

import (
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nbupdater/pkg/agent/llm"
	"nbupdater/pkg/agent/llmerrors"
	"nbupdater/pkg/tools"
)

func TestConvertMessagesCarriesToolCallArguments(t *testing.T) {
	msgs, err := convertMessagesToOllama([]llm.CompletionMessage{
		llm.NewUserMessage("run the notebook"),
		{
			Role:    llm.RoleAssistant,
			Content: "on it",
			ToolCalls: []llm.ToolCall{{
				ID:   "call_abc",
				Name: "run_notebook",
				Parameters: map[string]any{
					"cell_name": "setup",
					"full_run":  true,
				},
			}},
		},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	require.Len(t, msgs[1].ToolCalls, 1)
	call := msgs[1].ToolCalls[0]
	assert.Equal(t, "call_abc", call.ID)
	assert.Equal(t, "run_notebook", call.Function.Name)
	args := call.Function.Arguments.ToMap()
	assert.Equal(t, "setup", args["cell_name"])
	assert.Equal(t, true, args["full_run"])
}

func TestConvertMessagesSplitsToolResults(t *testing.T) {
	msgs, err := convertMessagesToOllama([]llm.CompletionMessage{
		{
			Role: llm.RoleUser,
			ToolResults: []llm.ToolResult{
				{ToolCallID: "call_1", Content: "cell replaced"},
				{ToolCallID: "call_2", Content: "run ok"},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "tool", msgs[0].Role)
	assert.Equal(t, "call_1", msgs[0].ToolCallID)
	assert.Equal(t, "run ok", msgs[1].Content)
}

func TestConvertMessagesRejectsEmptyInput(t *testing.T) {
	_, err := convertMessagesToOllama(nil)
	assert.Error(t, err)
}

func TestConvertToolsPopulatesProperties(t *testing.T) {
	converted := convertToolsToOllama([]tools.ToolDefinition{{
		Name:        "replace_cell",
		Description: "Replace a whole cell.",
		InputSchema: tools.InputSchema{
			Type: "object",
			Properties: map[string]tools.Property{
				"cell_name": {Type: "string", Description: "Target cell."},
				"mode":      {Type: "string", Enum: []string{"code", "markdown"}},
			},
			Required: []string{"cell_name"},
		},
	}})
	require.Len(t, converted, 1)

	fn := converted[0].Function
	assert.Equal(t, "replace_cell", fn.Name)
	assert.Equal(t, []string{"cell_name"}, fn.Parameters.Required)

	props := fn.Parameters.Properties.ToMap()
	require.Contains(t, props, "cell_name")
	assert.Equal(t, api.PropertyType{"string"}, props["cell_name"].Type)
	assert.Equal(t, "Target cell.", props["cell_name"].Description)
	assert.Equal(t, []any{"code", "markdown"}, props["mode"].Enum)
}

func TestConvertToolCallsFromOllama(t *testing.T) {
	first := api.NewToolCallFunctionArguments()
	first.Set("cell_name", "analysis")
	second := api.NewToolCallFunctionArguments()

	got := convertToolCallsFromOllama([]api.ToolCall{
		{ID: "call_x", Function: api.ToolCallFunction{Name: "run_notebook", Arguments: first}},
		{Function: api.ToolCallFunction{Name: "submit_notebook", Arguments: second}},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "call_x", got[0].ID)
	assert.Equal(t, map[string]any{"cell_name": "analysis"}, got[0].Parameters)
	// Ollama responses may omit call IDs; a stable fallback keeps tool
	// results pairable with their calls.
	assert.Equal(t, "call_1", got[1].ID)
	assert.Equal(t, "submit_notebook", got[1].Name)
}

func TestGetStopReason(t *testing.T) {
	assert.Equal(t, "incomplete", getStopReason(&api.ChatResponse{Done: false}))
	assert.Equal(t, "end_turn", getStopReason(&api.ChatResponse{Done: true, DoneReason: "stop"}))
	assert.Equal(t, "max_tokens", getStopReason(&api.ChatResponse{Done: true, DoneReason: "length"}))
	assert.Equal(t, "other", getStopReason(&api.ChatResponse{Done: true, DoneReason: "other"}))
}

func TestClassifyError(t *testing.T) {
	var llmErr *llmerrors.Error

	require.ErrorAs(t, classifyError(errWithText("dial tcp: connection refused")), &llmErr)
	assert.Equal(t, llmerrors.ErrorTypeTransient, llmErr.Type)

	require.ErrorAs(t, classifyError(errWithText(`model "llama99" not found`)), &llmErr)
	assert.Equal(t, llmerrors.ErrorTypeBadPrompt, llmErr.Type)

	require.ErrorAs(t, classifyError(assert.AnError), &llmErr)
	assert.Equal(t, llmerrors.ErrorTypeUnknown, llmErr.Type)
}

type textError string

func (e textError) Error() string { return string(e) }

func errWithText(s string) error { return textError(s) }
