package persistence

import "time"

// Session outcome constants.
const (
	OutcomeRunning   = "running"
	OutcomeApproved  = "approved"
	OutcomeExhausted = "exhausted"
	OutcomeFailed    = "failed"
)

// Session records one orchestration attempt over a notebook.
type Session struct {
	ID              string
	NotebookPath    string
	TaskDescription string
	Outcome         string
	Rounds          int
	Attempt         int
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// Turn records a single chat turn within a session.
type Turn struct {
	ID        int64
	SessionID string
	Round     int
	Author    string
	Role      string
	Content   string
	CreatedAt time.Time
}

// ToolCallRecord records one tool invocation within a turn.
type ToolCallRecord struct {
	ID        int64
	SessionID string
	Round     int
	Author    string
	ToolName  string
	Arguments string
	Result    string
	IsError   bool
	CreatedAt time.Time
}
