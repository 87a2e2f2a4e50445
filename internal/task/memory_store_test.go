package task

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(time.Hour, nil)
	t.Cleanup(s.Close)
	return s
}

func TestCreateTaskStartsWorking(t *testing.T) {
	s := newTestStore(t)
	tk, err := s.CreateTask(nil, "req-1", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, StatusWorking, tk.Status)
	assert.NotEmpty(t, tk.TaskID)
	assert.False(t, tk.CreatedAt.IsZero())
}

func TestSetTaskResultMovesToCompleted(t *testing.T) {
	s := newTestStore(t)
	tk, err := s.CreateTask(nil, "req-1", json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, s.SetTaskResult(tk.TaskID, Result{Payload: json.RawMessage(`{"ok":true}`)}))

	got, ok := s.GetTask(tk.TaskID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)

	res, ok := s.GetTaskResult(tk.TaskID)
	require.True(t, ok)
	assert.Equal(t, json.RawMessage(`{"ok":true}`), res.Payload)
}

func TestSetTaskResultFailurePath(t *testing.T) {
	s := newTestStore(t)
	tk, err := s.CreateTask(nil, "req-1", json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, s.SetTaskResult(tk.TaskID, Result{IsFailed: true, ErrCode: -32603, ErrMsg: "boom"}))

	got, _ := s.GetTask(tk.TaskID)
	assert.Equal(t, StatusFailed, got.Status)
}

func TestTaskStatusMonotonicityOnceTerminal(t *testing.T) {
	s := newTestStore(t)
	tk, err := s.CreateTask(nil, "req-1", json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, s.SetTaskResult(tk.TaskID, Result{Payload: json.RawMessage(`1`)}))
	require.NoError(t, s.SetTaskResult(tk.TaskID, Result{IsFailed: true, ErrMsg: "too late"}))

	got, _ := s.GetTask(tk.TaskID)
	assert.Equal(t, StatusCompleted, got.Status, "terminal status must not be re-entered")

	res, _ := s.GetTaskResult(tk.TaskID)
	assert.Equal(t, json.RawMessage(`1`), res.Payload)
}

func TestGetTaskResultIsIdempotentWithinTTL(t *testing.T) {
	s := newTestStore(t)
	tk, err := s.CreateTask(nil, "req-1", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NoError(t, s.SetTaskResult(tk.TaskID, Result{Payload: json.RawMessage(`"done"`)}))

	res1, ok1 := s.GetTaskResult(tk.TaskID)
	res2, ok2 := s.GetTaskResult(tk.TaskID)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, res1, res2)
}

func TestCancelTaskTransitionsNonTerminalTask(t *testing.T) {
	s := newTestStore(t)
	tk, err := s.CreateTask(nil, "req-1", json.RawMessage(`{}`))
	require.NoError(t, err)

	cancelled, ok := s.CancelTask(tk.TaskID)
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, cancelled.Status)
}

func TestCancelTaskLeavesTerminalTaskUnchanged(t *testing.T) {
	s := newTestStore(t)
	tk, err := s.CreateTask(nil, "req-1", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NoError(t, s.SetTaskResult(tk.TaskID, Result{Payload: json.RawMessage(`1`)}))

	got, ok := s.CancelTask(tk.TaskID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestListTasksPaginatesByCursor(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		_, err := s.CreateTask(nil, "req", json.RawMessage(`{}`))
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	page1, cursor1 := s.ListTasks("", 2)
	require.Len(t, page1, 2)
	require.NotEmpty(t, cursor1)

	page2, cursor2 := s.ListTasks(cursor1, 2)
	require.Len(t, page2, 2)
	require.NotEmpty(t, cursor2)

	page3, cursor3 := s.ListTasks(cursor2, 2)
	require.Len(t, page3, 1)
	assert.Empty(t, cursor3)
}

func TestGetTaskUnknownIDReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	_, ok := s.GetTask("nonexistent")
	assert.False(t, ok)
}

func TestSetTaskResultUnknownIDReturnsError(t *testing.T) {
	s := newTestStore(t)
	err := s.SetTaskResult("nonexistent", Result{})
	assert.Error(t, err)
}
