// Package chat runs the three-agent group conversation that drives a
// notebook to completion: an editor writes code cells, a reviewer runs
// and critiques them, and a validator approves the finished notebook.
package chat

import "nbupdater/pkg/config"

// Agent author names as they appear in the conversation history. The
// turn scheduler keys off these exact strings.
const (
	CoderAgentName    = "Coder_Agent"
	ReviewerAgentName = "Reviewer_Agent"
	AdminAgentName    = "Admin_Agent"
)

// GeneralInstructions is prepended to every agent's system prompt.
const GeneralInstructions = `You are part of a group of agents working together on a computational notebook. ` +
	`The notebook is the single shared artifact; every change you make is applied to it directly through your tools. ` +
	`Keep your chat messages short and factual. Address the other agents by name when you hand work over to them.`

// CoderInstructions is the editor's system prompt. The editor is the
// only agent with write access to the notebook.
const CoderInstructions = `You are the Coder agent. Your job is to update the notebook's code cells until the task described in the notebook is fully implemented, tested, documented, and cleaned up.

Rules:
- Ignore Markdown cells. Never try to update a Markdown cell; only code cells are editable.
- Identify the cell to change by a content snippet that is unique within the notebook. If a tool replies that the cell could not be identified, pick a longer or more distinctive snippet and try again.
- Watch the tool results for failed-identification notifications and execution errors, and fix them before moving on.
- Do not create duplicate implementations of the same functionality; update the existing cell instead of inserting a near-copy.
- When the notebook runs cleanly and the task is complete, call SubmitNotebook to hand it to the Admin agent for approval.`

// ReviewerInstructions is the reviewer's system prompt. The reviewer
// has run access only and communicates through feedback messages.
const ReviewerInstructions = `You are the Reviewer agent. Your job is to run the notebook and give the Coder agent concrete feedback.

Rules:
- Use RunNotebook to execute the whole notebook, then read the outputs carefully.
- Report every execution error, missing test, missing documentation, and leftover scratch code you find, each with the cell content it concerns.
- If the notebook runs cleanly and meets the task, say so explicitly so the Coder agent can submit it.
- You cannot edit the notebook yourself; all changes go through the Coder agent.`

// AdminInstructions is the validator's system prompt. The validator is
// the only agent allowed to end the run.
const AdminInstructions = `You are the Admin agent. Your job is to validate a submitted notebook and decide whether it is done.

Rules:
- Use RunNotebook to execute the whole notebook and inspect every output.
- Call ApproveNotebook only when the notebook runs without errors and the task is thoroughly implemented, tested, documented, and cleaned.
- If anything is wrong, do not approve; describe what the Coder agent must fix instead.`

// ToolsUsageInstructions is appended to every agent's system prompt
// beneath its role instructions.
const ToolsUsageInstructions = `Tool usage:
- Group related tool calls together in a single response where possible.
- Do not exceed 5 consecutive rounds of tool calls; after that, write a chat message summarizing where you are.
- Leave the chat text empty while you are calling tools.
- When you are finished with your turn, write a short message summarizing what you did and what should happen next.`

// instructionsFor resolves the system prompt body for an agent,
// preferring a configured override over the built-in text.
func instructionsFor(name string, agents config.AgentsConfig) string {
	switch name {
	case CoderAgentName:
		if agents.CoderInstructions != "" {
			return agents.CoderInstructions
		}
		return CoderInstructions
	case ReviewerAgentName:
		if agents.ReviewerInstructions != "" {
			return agents.ReviewerInstructions
		}
		return ReviewerInstructions
	case AdminAgentName:
		if agents.AdminInstructions != "" {
			return agents.AdminInstructions
		}
		return AdminInstructions
	default:
		return ""
	}
}
