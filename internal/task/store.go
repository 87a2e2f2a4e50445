package task

import "encoding/json"

// Store is the TaskStore contract
type Store interface {
	// CreateTask generates a unique task id, records it in status
	// Working, and returns the new Task.
	CreateTask(meta *Metadata, reqID string, req json.RawMessage) (*Task, error)

	// SetTaskResult moves the task to Completed or Failed and stores the
	// result for later retrieval. No-op if the task is already terminal.
	SetTaskResult(taskID string, result Result) error

	// GetTask looks up a task record by id.
	GetTask(taskID string) (*Task, bool)

	// ListTasks returns a page of tasks and an opaque cursor for the next
	// page, or an empty cursor when exhausted.
	ListTasks(cursor string, limit int) ([]*Task, string)

	// GetTaskResult reads the stored result. Idempotent within the
	// task's TTL (see DESIGN.md Open Question decisions).
	GetTaskResult(taskID string) (Result, bool)

	// CancelTask transitions a non-terminal task to Cancelled; returns
	// the task's current state either way.
	CancelTask(taskID string) (*Task, bool)
}
