package task

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// record pairs a Task with its stored Result.
type record struct {
	mu     sync.Mutex
	task   Task
	result *Result
}

// MemoryStore is the default in-memory TaskStore: a sync.Map keyed by
// task id, with a background goroutine reaping terminal tasks after
// their TTL expires (default 1 hour).
type MemoryStore struct {
	tasks         sync.Map // task_id -> *record
	defaultTTL    time.Duration
	onTransition  func(*Task)
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// NewMemoryStore constructs an in-memory task store. onTransition, if
// non-nil, is invoked after every status change — the concrete wiring
// point for the notifications/tasks/status event (see internal/session).
func NewMemoryStore(defaultTTL time.Duration, onTransition func(*Task)) *MemoryStore {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	s := &MemoryStore{defaultTTL: defaultTTL, onTransition: onTransition, stopCh: make(chan struct{})}
	go s.reapLoop()
	return s
}

// Close stops the background reaper.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *MemoryStore) reapLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.reapExpired()
		}
	}
}

func (s *MemoryStore) reapExpired() {
	now := time.Now()
	s.tasks.Range(func(key, value any) bool {
		r := value.(*record)
		r.mu.Lock()
		defer r.mu.Unlock()
		if !r.task.Status.Terminal() {
			return true
		}
		ttl := s.defaultTTL
		if r.task.TTL != nil {
			ttl = time.Duration(*r.task.TTL) * time.Millisecond
		}
		if now.Sub(r.task.LastUpdatedAt) > ttl {
			s.tasks.Delete(key)
		}
		return true
	})
}

// CreateTask implements Store.
func (s *MemoryStore) CreateTask(meta *Metadata, reqID string, req json.RawMessage) (*Task, error) {
	now := time.Now()
	t := Task{
		TaskID:        uuid.New().String(),
		Status:        StatusWorking,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	if meta != nil {
		t.TTL = meta.TTL
	}

	r := &record{task: t}
	s.tasks.Store(t.TaskID, r)

	if s.onTransition != nil {
		cp := t
		s.onTransition(&cp)
	}
	return &t, nil
}

// SetTaskResult implements Store.
func (s *MemoryStore) SetTaskResult(taskID string, result Result) error {
	v, ok := s.tasks.Load(taskID)
	if !ok {
		return fmt.Errorf("task: not found: %s", taskID)
	}
	r := v.(*record)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.task.Status.Terminal() {
		return nil
	}
	if result.IsFailed {
		r.task.Status = StatusFailed
	} else {
		r.task.Status = StatusCompleted
	}
	r.task.LastUpdatedAt = time.Now()
	resCopy := result
	r.result = &resCopy

	if s.onTransition != nil {
		cp := r.task
		s.onTransition(&cp)
	}
	return nil
}

// GetTask implements Store.
func (s *MemoryStore) GetTask(taskID string) (*Task, bool) {
	v, ok := s.tasks.Load(taskID)
	if !ok {
		return nil, false
	}
	r := v.(*record)
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := r.task
	return &cp, true
}

// ListTasks implements Store. The cursor is the task id to resume after,
// ordered by CreatedAt then TaskID for stability.
func (s *MemoryStore) ListTasks(cursor string, limit int) ([]*Task, string) {
	if limit <= 0 {
		limit = 50
	}

	var all []*Task
	s.tasks.Range(func(_, value any) bool {
		r := value.(*record)
		r.mu.Lock()
		cp := r.task
		r.mu.Unlock()
		all = append(all, &cp)
		return true
	})

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].TaskID < all[j].TaskID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	start := 0
	if cursor != "" {
		for i, t := range all {
			if t.TaskID == cursor {
				start = i + 1
				break
			}
		}
	}

	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	if start >= len(all) {
		return nil, ""
	}

	page := all[start:end]
	next := ""
	if end < len(all) {
		next = page[len(page)-1].TaskID
	}
	return page, next
}

// GetTaskResult implements Store. Idempotent multi-read within TTL.
func (s *MemoryStore) GetTaskResult(taskID string) (Result, bool) {
	v, ok := s.tasks.Load(taskID)
	if !ok {
		return Result{}, false
	}
	r := v.(*record)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.result == nil {
		return Result{}, false
	}
	return *r.result, true
}

// CancelTask implements Store.
func (s *MemoryStore) CancelTask(taskID string) (*Task, bool) {
	v, ok := s.tasks.Load(taskID)
	if !ok {
		return nil, false
	}
	r := v.(*record)
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.task.Status.Terminal() {
		r.task.Status = StatusCancelled
		r.task.LastUpdatedAt = time.Now()
		if s.onTransition != nil {
			cp := r.task
			go s.onTransition(&cp)
		}
	}
	cp := r.task
	return &cp, true
}
