package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DatabaseOperations provides methods for recording and querying
// orchestration runs. All operations are scoped to a session ID.
type DatabaseOperations struct {
	db        *sql.DB
	sessionID string
}

// NewDatabaseOperations creates a new DatabaseOperations instance.
func NewDatabaseOperations(db *sql.DB, sessionID string) *DatabaseOperations {
	return &DatabaseOperations{db: db, sessionID: sessionID}
}

// SessionID returns the session this instance is scoped to.
func (ops *DatabaseOperations) SessionID() string {
	return ops.sessionID
}

// StartSession inserts a session row in the running state.
func (ops *DatabaseOperations) StartSession(notebookPath, taskDescription string, attempt int) error {
	query := `
		INSERT INTO sessions (id, notebook_path, task_description, attempt)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			attempt = excluded.attempt,
			outcome = 'running',
			completed_at = NULL
	`
	if _, err := ops.db.Exec(query, ops.sessionID, notebookPath, taskDescription, attempt); err != nil {
		return fmt.Errorf("failed to start session %s: %w", ops.sessionID, err)
	}
	return nil
}

// FinishSession marks the session complete with its final outcome and
// round count.
func (ops *DatabaseOperations) FinishSession(outcome string, rounds int) error {
	query := `
		UPDATE sessions
		SET outcome = ?, rounds = ?, completed_at = ?
		WHERE id = ?
	`
	timestamp := time.Now().UTC().Format(time.RFC3339)
	result, err := ops.db.Exec(query, outcome, rounds, timestamp, ops.sessionID)
	if err != nil {
		return fmt.Errorf("failed to finish session %s: %w", ops.sessionID, err)
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("finish session %s: %w", ops.sessionID, ErrNotFound)
	}
	return nil
}

// RecordTurn appends a chat turn to the session log.
func (ops *DatabaseOperations) RecordTurn(round int, author, role, content string) (int64, error) {
	query := `
		INSERT INTO turns (session_id, round, author, role, content)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := ops.db.Exec(query, ops.sessionID, round, author, role, content)
	if err != nil {
		return 0, fmt.Errorf("failed to record turn for session %s: %w", ops.sessionID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get turn id: %w", err)
	}
	return id, nil
}

// RecordToolCall appends a tool invocation to the session log.
func (ops *DatabaseOperations) RecordToolCall(round int, author, toolName, arguments, result string, isError bool) error {
	query := `
		INSERT INTO tool_calls (session_id, round, author, tool_name, arguments, result, is_error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	errFlag := 0
	if isError {
		errFlag = 1
	}
	if _, err := ops.db.Exec(query, ops.sessionID, round, author, toolName, arguments, result, errFlag); err != nil {
		return fmt.Errorf("failed to record tool call for session %s: %w", ops.sessionID, err)
	}
	return nil
}

// GetSession returns the session row for this instance's session ID.
func (ops *DatabaseOperations) GetSession() (*Session, error) {
	query := `
		SELECT id, notebook_path, task_description, outcome, rounds, attempt, started_at, completed_at
		FROM sessions WHERE id = ?
	`
	var s Session
	var startedAt string
	var completedAt sql.NullString
	err := ops.db.QueryRow(query, ops.sessionID).Scan(
		&s.ID, &s.NotebookPath, &s.TaskDescription, &s.Outcome,
		&s.Rounds, &s.Attempt, &startedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", ops.sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", ops.sessionID, err)
	}

	s.StartedAt = parseTimestamp(startedAt)
	if completedAt.Valid {
		t := parseTimestamp(completedAt.String)
		s.CompletedAt = &t
	}
	return &s, nil
}

// GetTurns returns all turns for the session in insertion order.
func (ops *DatabaseOperations) GetTurns() ([]*Turn, error) {
	query := `
		SELECT id, session_id, round, author, role, content, created_at
		FROM turns WHERE session_id = ? ORDER BY id
	`
	rows, err := ops.db.Query(query, ops.sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns for session %s: %w", ops.sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var turns []*Turn
	for rows.Next() {
		var t Turn
		var createdAt string
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Round, &t.Author, &t.Role, &t.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.CreatedAt = parseTimestamp(createdAt)
		turns = append(turns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("turn row iteration failed: %w", err)
	}
	return turns, nil
}

// GetToolCalls returns all tool calls for the session in insertion order.
func (ops *DatabaseOperations) GetToolCalls() ([]*ToolCallRecord, error) {
	query := `
		SELECT id, session_id, round, author, tool_name, arguments, result, is_error, created_at
		FROM tool_calls WHERE session_id = ? ORDER BY id
	`
	rows, err := ops.db.Query(query, ops.sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool calls for session %s: %w", ops.sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var calls []*ToolCallRecord
	for rows.Next() {
		var c ToolCallRecord
		var createdAt string
		var errFlag int
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Round, &c.Author, &c.ToolName,
			&c.Arguments, &c.Result, &errFlag, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan tool call: %w", err)
		}
		c.IsError = errFlag != 0
		c.CreatedAt = parseTimestamp(createdAt)
		calls = append(calls, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tool call row iteration failed: %w", err)
	}
	return calls, nil
}

// parseTimestamp handles both RFC3339 and SQLite's default format.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
