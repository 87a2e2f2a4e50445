// Package session implements the session manager and per-session event
// buffer, grounded on the SessionStore
// (pkg/mcp/protocol.go) generalized from a bare map to carry an event
// ring, and its SSE heartbeat/subscribe loop (pkg/mcp/sse.go)
// generalized from a NATS subscription to a buffer drain-then-tail.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionLimitReached is returned by Create when the manager is at
// capacity; callers surface this as HTTP 503.
var ErrSessionLimitReached = errors.New("session: session_limit_reached")

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session: not found")

// ErrSessionExpired is returned when a session id was known but has aged
// out past the idle timeout; callers surface this as HTTP 410.
var ErrSessionExpired = errors.New("session: expired")

const (
	// DefaultIdleTimeout is the default session_timeout.
	DefaultIdleTimeout = 300 * time.Second
	// DefaultMaxSessions is the default global session cap.
	DefaultMaxSessions = 1000
	// DefaultBufferCapacity is the default max_events_per_session.
	DefaultBufferCapacity = 1000
)

// Session is a logical client connection: an id, lifetime, and the event
// ring buffer owned exclusively by this session.
type Session struct {
	ID              string
	ProtocolVersion string
	Initialized     bool
	LogLevel        string

	mu           sync.Mutex
	createdAt    time.Time
	lastActivity time.Time
	buffer       *EventBuffer
}

// Touch records activity, resetting the idle-expiry clock.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// CreatedAt returns the session's creation time.
func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

// LastActivity returns the session's most recent activity time.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Buffer returns the session's outbound event ring.
func (s *Session) Buffer() *EventBuffer { return s.buffer }

// Manager issues and tracks sessions, enforcing the idle-timeout and
// max_sessions limits. The session map is guarded by a read-write lock
// under the assumption reads dominate writes.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxSessions int
	idleTimeout time.Duration
	bufCap      int

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewManager constructs a Manager. Zero values select the package's
// defaults.
func NewManager(maxSessions int, idleTimeout time.Duration, bufCap int) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if bufCap <= 0 {
		bufCap = DefaultBufferCapacity
	}
	m := &Manager{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
		idleTimeout: idleTimeout,
		bufCap:      bufCap,
		stopCh:      make(chan struct{}),
	}
	go m.reapLoop()
	return m
}

// Close stops the background idle-reaper.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Manager) reapLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

func (m *Manager) reapIdle() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.idleFor(now) > m.idleTimeout {
			delete(m.sessions, id)
		}
	}
}

// Create issues a new session with an opaque, collision-resistant id.
func (m *Manager) Create(protocolVersion string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.maxSessions {
		return nil, ErrSessionLimitReached
	}

	now := time.Now()
	s := &Session{
		ID:              uuid.New().String(),
		ProtocolVersion: protocolVersion,
		createdAt:       now,
		lastActivity:    now,
		buffer:          NewEventBuffer(m.bufCap),
	}
	s.buffer.BindSessionID(s.ID)
	m.sessions[s.ID] = s
	return s, nil
}

// Get looks up a session, distinguishing "never existed" from "expired
// by idle timeout" so callers can choose 404 vs 410.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.idleFor(time.Now()) > m.idleTimeout {
		m.mu.Lock()
		delete(m.sessions, sessionID)
		m.mu.Unlock()
		return nil, ErrSessionExpired
	}
	s.Touch()
	return s, nil
}

// Delete terminates a session explicitly (DELETE /mcp).
func (m *Manager) Delete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Count reports the number of live sessions, for metrics.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot of every live session, for broadcasting a
// notification (e.g. a list_changed event) to all connected clients.
func (m *Manager) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
