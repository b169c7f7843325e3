package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOps(t *testing.T) *DatabaseOperations {
	t.Helper()
	db, err := InitializeDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewDatabaseOperations(db, "session-1")
}

func TestSessionLifecycle(t *testing.T) {
	ops := newTestOps(t)

	require.NoError(t, ops.StartSession("work.ipynb", "build a report", 1))

	s, err := ops.GetSession()
	require.NoError(t, err)
	assert.Equal(t, OutcomeRunning, s.Outcome)
	assert.Equal(t, "work.ipynb", s.NotebookPath)
	assert.Equal(t, 1, s.Attempt)
	assert.Nil(t, s.CompletedAt)

	require.NoError(t, ops.FinishSession(OutcomeApproved, 7))

	s, err = ops.GetSession()
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, s.Outcome)
	assert.Equal(t, 7, s.Rounds)
	require.NotNil(t, s.CompletedAt)
	assert.False(t, s.CompletedAt.IsZero())
}

func TestStartSessionRetryResetsOutcome(t *testing.T) {
	ops := newTestOps(t)

	require.NoError(t, ops.StartSession("work.ipynb", "task", 1))
	require.NoError(t, ops.FinishSession(OutcomeFailed, 3))

	// A retry reuses the session row with a bumped attempt.
	require.NoError(t, ops.StartSession("work.ipynb", "task", 2))

	s, err := ops.GetSession()
	require.NoError(t, err)
	assert.Equal(t, OutcomeRunning, s.Outcome)
	assert.Equal(t, 2, s.Attempt)
	assert.Nil(t, s.CompletedAt)
}

func TestFinishUnknownSessionFails(t *testing.T) {
	ops := newTestOps(t)
	err := ops.FinishSession(OutcomeApproved, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordAndQueryTurns(t *testing.T) {
	ops := newTestOps(t)
	require.NoError(t, ops.StartSession("work.ipynb", "task", 1))

	id1, err := ops.RecordTurn(1, "Coder", "assistant", "editing cell 2")
	require.NoError(t, err)
	id2, err := ops.RecordTurn(2, "Reviewer", "assistant", "looks good")
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	turns, err := ops.GetTurns()
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "Coder", turns[0].Author)
	assert.Equal(t, 2, turns[1].Round)
	assert.False(t, turns[0].CreatedAt.IsZero())
}

func TestRecordAndQueryToolCalls(t *testing.T) {
	ops := newTestOps(t)
	require.NoError(t, ops.StartSession("work.ipynb", "task", 1))

	require.NoError(t, ops.RecordToolCall(1, "Coder", "ReplaceWorkbookCell",
		`{"uniqueContent":"import"}`, "Cell #0 successfully updated", false))
	require.NoError(t, ops.RecordToolCall(2, "Coder", "InsertInWorkbookCell",
		`{}`, "Error: cell not found", true))

	calls, err := ops.GetToolCalls()
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "ReplaceWorkbookCell", calls[0].ToolName)
	assert.False(t, calls[0].IsError)
	assert.True(t, calls[1].IsError)
}

func TestSessionIsolation(t *testing.T) {
	db, err := InitializeDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	opsA := NewDatabaseOperations(db, "session-a")
	opsB := NewDatabaseOperations(db, "session-b")

	require.NoError(t, opsA.StartSession("a.ipynb", "task a", 1))
	require.NoError(t, opsB.StartSession("b.ipynb", "task b", 1))
	_, err = opsA.RecordTurn(1, "Coder", "assistant", "only in a")
	require.NoError(t, err)

	turnsB, err := opsB.GetTurns()
	require.NoError(t, err)
	assert.Empty(t, turnsB)

	sessB, err := opsB.GetSession()
	require.NoError(t, err)
	assert.Equal(t, "b.ipynb", sessB.NotebookPath)
}

func TestInitializeDatabaseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db1, err := InitializeDatabase(path)
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	db2, err := InitializeDatabase(path)
	require.NoError(t, err)
	defer func() { _ = db2.Close() }()

	version, err := GetSchemaVersion(db2)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}
