// Package contextmgr provides token counting and compaction for the
// conversation window sent to LLM providers.
package contextmgr

import (
	"fmt"
	"strings"

	"nbupdater/pkg/utils"
)

// Message represents a single message in the conversation context.
type Message struct {
	Role    string
	Content string
}

// compactionNotice replaces elided messages so the model knows history
// was dropped rather than silently missing.
const compactionNotice = "[earlier conversation compacted to fit the context window]"

// ContextManager manages conversation context and token counting.
// The first message is treated as the seed (task description plus
// starting notebook) and is never compacted away.
type ContextManager struct {
	messages  []Message
	counter   *utils.TokenCounter
	maxTokens int
}

// NewContextManager creates a context manager bounded at maxTokens.
// Token counts fall back to a character heuristic if the tokenizer
// cannot be constructed.
func NewContextManager(model string, maxTokens int) *ContextManager {
	counter, err := utils.NewTokenCounter(model)
	if err != nil {
		counter = nil
	}
	return &ContextManager{
		messages:  make([]Message, 0),
		counter:   counter,
		maxTokens: maxTokens,
	}
}

// AddMessage stores a role/content pair in the context.
func (cm *ContextManager) AddMessage(role, content string) {
	cm.messages = append(cm.messages, Message{Role: role, Content: content})
}

// CountTokens returns the token count of the whole context.
func (cm *ContextManager) CountTokens() int {
	total := 0
	for i := range cm.messages {
		total += cm.countText(cm.messages[i].Role) + cm.countText(cm.messages[i].Content)
	}
	return total
}

func (cm *ContextManager) countText(text string) int {
	if cm.counter != nil {
		return cm.counter.CountTokens(text)
	}
	return len(text) / 4
}

// ShouldCompact checks whether the context exceeds the budget.
func (cm *ContextManager) ShouldCompact() bool {
	if cm.maxTokens <= 0 {
		return false
	}
	return cm.CountTokens() > cm.maxTokens
}

// CompactIfNeeded drops the oldest non-seed messages until the context
// fits the budget, replacing them with a single compaction notice.
func (cm *ContextManager) CompactIfNeeded() {
	if !cm.ShouldCompact() {
		return
	}

	dropped := 0
	for cm.CountTokens() > cm.maxTokens && len(cm.messages) > 2 {
		// Index 0 is the seed; a notice may already sit at index 1.
		victim := 1
		if cm.messages[1].Content == compactionNotice && len(cm.messages) > 3 {
			victim = 2
		}
		cm.messages = append(cm.messages[:victim], cm.messages[victim+1:]...)
		dropped++
	}

	if dropped > 0 && cm.messages[1].Content != compactionNotice {
		rest := make([]Message, len(cm.messages)-1)
		copy(rest, cm.messages[1:])
		cm.messages = append(cm.messages[:1], Message{Role: "user", Content: compactionNotice})
		cm.messages = append(cm.messages, rest...)
	}
}

// GetMessages returns a copy of all messages in the context.
func (cm *ContextManager) GetMessages() []Message {
	result := make([]Message, len(cm.messages))
	copy(result, cm.messages)
	return result
}

// GetMessageCount returns the number of messages in the context.
func (cm *ContextManager) GetMessageCount() int {
	return len(cm.messages)
}

// Clear removes all messages from the context.
func (cm *ContextManager) Clear() {
	cm.messages = cm.messages[:0]
}

// GetContextSummary returns a brief summary of the context state.
func (cm *ContextManager) GetContextSummary() string {
	if len(cm.messages) == 0 {
		return "Empty context"
	}

	roleCounts := make(map[string]int)
	for i := range cm.messages {
		roleCounts[cm.messages[i].Role]++
	}
	var roleBreakdown []string
	for role, count := range roleCounts {
		roleBreakdown = append(roleBreakdown, fmt.Sprintf("%s: %d", role, count))
	}

	return fmt.Sprintf("%d messages (%d tokens) - %s",
		len(cm.messages), cm.CountTokens(), strings.Join(roleBreakdown, ", "))
}
