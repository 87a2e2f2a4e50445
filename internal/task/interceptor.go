package task

import (
	"context"
	"encoding/json"

	"github.com/coremcp/coremcp/internal/protocol"
)

// SupportPolicy mirrors a tool's execution.taskSupport declaration.
type SupportPolicy int

const (
	SupportForbidden SupportPolicy = iota
	SupportOptional
	SupportRequired
)

// PolicyResolver answers whether a given method/params pair may run as a
// task. The mcp server wires this to the tool registry's
// execution.taskSupport field; methods it has never heard of should
// return SupportForbidden.
type PolicyResolver func(method string, params json.RawMessage) SupportPolicy

// taskRequest is the client-supplied `task` field on a task-augmented
// request, e.g. tools/call(name, arguments, task: {ttl}).
type taskRequest struct {
	TTL *uint64 `json:"ttl,omitempty"`
}

type paramsWithTask struct {
	Task *taskRequest `json:"task"`
}

// Interceptor implements protocol.TaskInterceptor: it turns a handler
// invocation into a deferred Task record when the inbound request asks
// for one and the resolved policy allows it,
type Interceptor struct {
	store    Store
	resolve  PolicyResolver
	notifier func(method string, task *Task)
}

// NewInterceptor constructs an Interceptor backed by store. notifier, if
// non-nil, is invoked with the owning method and the task's latest state
// any time the stored task transitions — the wiring point for
// notifications/tasks/status.
func NewInterceptor(store Store, resolve PolicyResolver, notifier func(method string, task *Task)) *Interceptor {
	return &Interceptor{store: store, resolve: resolve, notifier: notifier}
}

// Intercept implements protocol.TaskInterceptor.
func (ic *Interceptor) Intercept(ctx context.Context, method string, rc *protocol.RequestContext, handler protocol.RequestHandler, params json.RawMessage) (json.RawMessage, bool, error) {
	var pwt paramsWithTask
	_ = json.Unmarshal(params, &pwt)

	if pwt.Task == nil {
		return nil, false, nil
	}

	policy := SupportForbidden
	if ic.resolve != nil {
		policy = ic.resolve(method, params)
	}
	if policy == SupportForbidden {
		return nil, true, protocol.NewTaskUnsupported(method)
	}

	meta := &Metadata{}
	if pwt.Task.TTL != nil {
		meta.TTL = pwt.Task.TTL
	}

	t, err := ic.store.CreateTask(meta, rc.SessionID, params)
	if err != nil {
		return nil, true, protocol.NewInternal(err)
	}
	ic.fireNotify(method, t)

	go ic.run(method, t.TaskID, rc, handler, params)

	payload, err := json.Marshal(struct {
		Task *Task `json:"task"`
	}{Task: t})
	if err != nil {
		return nil, true, protocol.NewInternal(err)
	}
	return payload, true, nil
}

// run executes handler in the background and stores its outcome. If the
// request's cancellation token fires first, the handler's future is
// dropped and the task is marked cancelled instead of waiting for it.
func (ic *Interceptor) run(method, taskID string, rc *protocol.RequestContext, handler protocol.RequestHandler, params json.RawMessage) {
	type outcome struct {
		result json.RawMessage
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: protocol.NewInternal(nil)}
			}
		}()
		result, err := handler(context.Background(), params)
		done <- outcome{result: result, err: err}
	}()

	var cancelCh <-chan struct{}
	if rc.Options.Cancel != nil {
		cancelCh = rc.Options.Cancel.Done()
	}

	select {
	case out := <-done:
		res := Result{Payload: out.result}
		if out.err != nil {
			res.IsFailed = true
			if pe, ok := out.err.(*protocol.Error); ok {
				res.ErrCode = pe.Code()
				res.ErrMsg = pe.Message
			} else {
				res.ErrCode = protocol.ErrHandler.Code()
				res.ErrMsg = out.err.Error()
			}
		}
		_ = ic.store.SetTaskResult(taskID, res)
	case <-cancelCh:
		_, _ = ic.store.CancelTask(taskID)
	}

	if t, ok := ic.store.GetTask(taskID); ok {
		ic.fireNotify(method, t)
	}
}

func (ic *Interceptor) fireNotify(method string, t *Task) {
	if ic.notifier != nil {
		ic.notifier(method, t)
	}
}
