package protocol

import (
	"sync"
	"sync/atomic"
	"time"
)

// ProgressToken correlates notifications/progress with the request that
// requested it; it is a string or integer carried in a request's
// _meta.progressToken.
type ProgressToken struct {
	Str   string
	Num   int64
	IsNum bool
}

// CancelToken is a cooperative cancellation flag plus waker: cancel() is
// idempotent and thread-safe, and setting the flag happens-before waking
// any future awaiting it. Implemented with an atomic flag and a channel
// that is closed exactly once.
type CancelToken struct {
	flag   atomic.Bool
	once   sync.Once
	doneCh chan struct{}
}

// NewCancelToken returns a token in the not-cancelled state.
func NewCancelToken() *CancelToken {
	return &CancelToken{doneCh: make(chan struct{})}
}

// Cancel marks the token cancelled. Idempotent.
func (t *CancelToken) Cancel() {
	t.flag.Store(true)
	t.once.Do(func() { close(t.doneCh) })
}

// Cancelled reports the current cancellation state.
func (t *CancelToken) Cancelled() bool { return t.flag.Load() }

// Done returns a channel closed the moment Cancel is called, for use in a
// select alongside I/O or timeout channels.
func (t *CancelToken) Done() <-chan struct{} { return t.doneCh }

// RequestOptions carries the per-request timeout and cancellation token
// constructed by the protocol runtime for each dispatch.
type RequestOptions struct {
	Timeout time.Duration
	Cancel  *CancelToken
}

// RequestMeta carries the progress token and any related task id for a
// dispatch, surfaced to handlers via RequestContext.
type RequestMeta struct {
	ProgressToken *ProgressToken
	TaskID        string
}

// RequestContext is constructed once per dispatched request and threaded
// through the handler via context.Context values (see
// WithRequestContext/RequestContextFrom).
type RequestContext struct {
	SessionID string
	Options   RequestOptions
	Meta      RequestMeta
}
