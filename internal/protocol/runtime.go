package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coremcp/coremcp/internal/jsonrpc"
	"github.com/coremcp/coremcp/internal/logging"
)

// requestContextKey is the unexported context-key type used to attach a
// *RequestContext to a context.Context.
type requestContextKey struct{}

// WithRequestContext attaches rc to ctx for downstream handlers to read.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom extracts the *RequestContext attached by the runtime,
// if any.
func RequestContextFrom(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}

// Validator is the schema-validation collaborator the runtime consults
// before dispatch (see internal/schema for the concrete
// jsonschema/v6-backed implementation).
type Validator interface {
	// Validate checks value against the compiled schema registered for a
	// method, returning a non-empty error list on failure.
	Validate(schemaName string, value json.RawMessage) []string
}

// RequestHandler executes a validated request and returns its result
// payload or an error.
type RequestHandler func(ctx context.Context, params json.RawMessage) (json.RawMessage, error)

// NotificationHandler executes a validated notification; it returns no
// envelope.
type NotificationHandler func(ctx context.Context, params json.RawMessage)

// TaskInterceptor is consulted on every dispatch and decides for itself,
// from params, whether this request should be deferred to a background
// task (see internal/task, which inspects params for a "task" field).
// handled is false if no task field was present; the runtime then falls
// through to a direct handler invocation. A task field on a method whose
// policy forbids tasks gives handled true and a TaskUnsupported error.
type TaskInterceptor interface {
	Intercept(ctx context.Context, method string, rc *RequestContext, handler RequestHandler, params json.RawMessage) (result json.RawMessage, handled bool, err error)
}

type handlerRegistration struct {
	schemaName string
	handler    RequestHandler
}

type notificationRegistration struct {
	schemaName string
	handler    NotificationHandler
}

// Runtime is the protocol dispatch pipeline: handler
// lookup, capability gate, schema validation, RequestContext
// construction, task interception, cancellation/timeout, and result
// wrapping.
type Runtime struct {
	mu            sync.RWMutex
	requests      map[string]handlerRegistration
	notifications map[string]notificationRegistration

	Validator  Validator
	Gate       *CapabilityGate
	Caps       *CapabilitySet
	Interceptor TaskInterceptor

	DefaultTimeout time.Duration

	// cancelByID tracks in-flight cancellation tokens keyed by request id
	// string, so notifications/cancelled can find and fire them.
	cancelByID sync.Map
}

// NewRuntime constructs a Runtime with the given collaborators.
func NewRuntime(validator Validator, gate *CapabilityGate, caps *CapabilitySet) *Runtime {
	return &Runtime{
		requests:       make(map[string]handlerRegistration),
		notifications:  make(map[string]notificationRegistration),
		Validator:      validator,
		Gate:           gate,
		Caps:           caps,
		DefaultTimeout: 30 * time.Second,
	}
}

// RegisterRequestHandler registers a handler for a request method,
// replacing any earlier one. Registration is never rejected, whatever
// the current negotiation state; the capability gate runs per-dispatch.
func (r *Runtime) RegisterRequestHandler(method, schemaName string, handler RequestHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[method] = handlerRegistration{schemaName: schemaName, handler: handler}
}

// RegisterNotificationHandler registers a handler for a notification method.
func (r *Runtime) RegisterNotificationHandler(method, schemaName string, handler NotificationHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications[method] = notificationRegistration{schemaName: schemaName, handler: handler}
}

func (r *Runtime) lookupRequest(method string) (handlerRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.requests[method]
	return reg, ok
}

func (r *Runtime) lookupNotification(method string) (notificationRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.notifications[method]
	return reg, ok
}

// Dispatch runs the full request pipeline (handler lookup, capability
// gate, schema validation, task interception) and returns the Result
// envelope to send back to the caller.
func (r *Runtime) Dispatch(ctx context.Context, sessionID string, req *jsonrpc.Request, meta RequestMeta) *jsonrpc.Message {
	reg, ok := r.lookupRequest(req.Method)
	if !ok {
		return jsonrpc.NewResultError(req.ID, NewUnknownMethod(req.Method).ToJSONRPCError())
	}

	if r.Gate != nil {
		if err := r.Gate.Check(req.Method, r.Caps); err != nil {
			return jsonrpc.NewResultError(req.ID, AsProtocolError(err).ToJSONRPCError())
		}
	}

	if r.Validator != nil && reg.schemaName != "" {
		if errs := r.Validator.Validate(reg.schemaName, req.Params); len(errs) > 0 {
			return jsonrpc.NewResultError(req.ID, NewValidation(errs).ToJSONRPCError())
		}
	}

	cancel := NewCancelToken()
	r.cancelByID.Store(req.ID.String(), cancel)
	defer r.cancelByID.Delete(req.ID.String())

	timeout := r.DefaultTimeout
	rc := &RequestContext{
		SessionID: sessionID,
		Options:   RequestOptions{Timeout: timeout, Cancel: cancel},
		Meta:      meta,
	}
	dctx := WithRequestContext(ctx, rc)
	dctx = withLoggingCorrelation(dctx, sessionID, req.ID.String(), req.Method, meta.TaskID)

	if r.Interceptor != nil {
		result, handled, err := r.Interceptor.Intercept(dctx, req.Method, rc, reg.handler, req.Params)
		if handled {
			if err != nil {
				return jsonrpc.NewResultError(req.ID, AsProtocolError(err).ToJSONRPCError())
			}
			return jsonrpc.NewResultSuccess(req.ID, result)
		}
	}

	result, err := r.runWithCancelAndTimeout(dctx, cancel, timeout, reg.handler, req.Params)
	if err != nil {
		return jsonrpc.NewResultError(req.ID, AsProtocolError(err).ToJSONRPCError())
	}
	return jsonrpc.NewResultSuccess(req.ID, result)
}

// DispatchNotification runs the notification pipeline: unknown
// notifications are silently dropped per the JSON-RPC 2.0 spec.
func (r *Runtime) DispatchNotification(ctx context.Context, sessionID string, n *jsonrpc.Notification) {
	if n.Method == "notifications/cancelled" {
		r.handleCancelledNotification(n.Params)
		return
	}

	reg, ok := r.lookupNotification(n.Method)
	if !ok {
		return
	}
	if r.Validator != nil && reg.schemaName != "" {
		if errs := r.Validator.Validate(reg.schemaName, n.Params); len(errs) > 0 {
			return
		}
	}
	ctx = withLoggingCorrelation(ctx, sessionID, "", n.Method, "")
	reg.handler(ctx, n.Params)
}

// withLoggingCorrelation attaches the session id, request id, method, and
// task id (whichever are non-empty) to ctx so any logging.Logger call
// downstream picks them up automatically via logging.ContextFields.
// Session/request ids come straight off the wire and may not satisfy
// logging's stricter id format, so invalid values are dropped rather
// than panicking the dispatch path.
func withLoggingCorrelation(ctx context.Context, sessionID, requestID, method, taskID string) context.Context {
	if method != "" {
		ctx = logging.WithMethod(ctx, method)
	}
	if sessionID != "" {
		ctx = safeWithSessionID(ctx, sessionID)
	}
	if requestID != "" {
		ctx = safeWithRequestID(ctx, requestID)
	}
	if taskID != "" {
		ctx = logging.WithTaskID(ctx, taskID)
	}
	return ctx
}

func safeWithSessionID(ctx context.Context, sessionID string) (out context.Context) {
	out = ctx
	defer func() {
		if recover() != nil {
			out = ctx
		}
	}()
	return logging.WithSessionID(ctx, sessionID)
}

func safeWithRequestID(ctx context.Context, requestID string) (out context.Context) {
	out = ctx
	defer func() {
		if recover() != nil {
			out = ctx
		}
	}()
	return logging.WithRequestID(ctx, requestID)
}

type cancelledParams struct {
	RequestID string `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
}

// handleCancelledNotification fires the cancellation token for the named
// in-flight request: the flag is set (and the waiting future woken)
// before this handler returns, and before any subsequent response the
// handler might produce.
func (r *Runtime) handleCancelledNotification(params json.RawMessage) {
	var p cancelledParams
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}
	if v, ok := r.cancelByID.Load(p.RequestID); ok {
		v.(*CancelToken).Cancel()
	}
}

// runWithCancelAndTimeout invokes handler cooperatively, racing the
// supplied cancellation token and a timeout against handler completion.
func (r *Runtime) runWithCancelAndTimeout(ctx context.Context, cancel *CancelToken, timeout time.Duration, handler RequestHandler, params json.RawMessage) (json.RawMessage, error) {
	type outcome struct {
		result json.RawMessage
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: NewInternal(fmt.Errorf("handler panic: %v", rec))}
			}
		}()
		result, err := handler(ctx, params)
		done <- outcome{result: result, err: err}
	}()

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		timeoutCh = timer.C
		defer timer.Stop()
	}

	select {
	case out := <-done:
		if out.err != nil {
			if pe, ok := out.err.(*Error); ok {
				return nil, pe
			}
			return nil, NewHandlerError(out.err)
		}
		return out.result, nil
	case <-cancel.Done():
		return nil, NewCancelled()
	case <-timeoutCh:
		cancel.Cancel()
		return nil, NewTimeout()
	}
}
