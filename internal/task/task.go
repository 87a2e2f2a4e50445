// Package task implements the task store contract and the task
// interceptor middleware that lets a tool call run asynchronously and be
// polled for its result.
package task

import (
	"encoding/json"
	"time"
)

// Status is one of the task lifecycle states. Status transitions form a
// DAG with terminals {Completed, Failed, Cancelled}; once terminal, a
// task is never re-entered.
type Status string

const (
	StatusWorking       Status = "working"
	StatusInputRequired Status = "input_required"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
)

// Terminal reports whether s is one of the DAG's terminal states.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Metadata is the client-supplied task options attached to a
// task-augmented request, e.g. {"ttl": 5000}.
type Metadata struct {
	TTL *uint64 `json:"ttl,omitempty"`
}

// Task is the deferred-execution record returned immediately by a
// task-augmented request and later polled via tasks/get. Field names and
// JSON tags mirror the Rust original exactly.
type Task struct {
	TaskID        string          `json:"taskId"`
	Status        Status          `json:"status"`
	TTL           *uint64         `json:"ttl,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	LastUpdatedAt time.Time       `json:"lastUpdatedAt"`
	PollInterval  *uint64         `json:"pollInterval,omitempty"`
	StatusMessage string          `json:"statusMessage,omitempty"`
	Meta          json.RawMessage `json:"_meta,omitempty"`
}

// Result is the stored outcome of a completed or failed task: exactly one
// of Payload or ErrMsg/ErrCode is set.
type Result struct {
	Payload  json.RawMessage
	ErrCode  int
	ErrMsg   string
	IsFailed bool
}
