package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, maxSessions int, idleTimeout time.Duration) *Manager {
	t.Helper()
	m := NewManager(maxSessions, idleTimeout, 10)
	t.Cleanup(m.Close)
	return m
}

func TestCreateIssuesUniqueSessionIDs(t *testing.T) {
	m := newTestManager(t, 0, 0)
	s1, err := m.Create("2025-03-26")
	require.NoError(t, err)
	s2, err := m.Create("2025-03-26")
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, s2.ID)
}

func TestCreateBindsSessionIDOntoEventIDs(t *testing.T) {
	m := newTestManager(t, 0, 0)
	s, err := m.Create("v")
	require.NoError(t, err)

	ev := s.Buffer().Append("message", []byte(`{}`))
	assert.Equal(t, s.ID+"-1", ev.ID)
}

func TestCreateRespectsMaxSessionsCap(t *testing.T) {
	m := newTestManager(t, 1, 0)
	_, err := m.Create("v")
	require.NoError(t, err)

	_, err = m.Create("v")
	assert.ErrorIs(t, err, ErrSessionLimitReached)
}

func TestGetUnknownSessionReturnsNotFound(t *testing.T) {
	m := newTestManager(t, 0, 0)
	_, err := m.Get("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetTouchesLastActivity(t *testing.T) {
	m := newTestManager(t, 0, 0)
	s, err := m.Create("v")
	require.NoError(t, err)
	before := s.LastActivity()
	time.Sleep(5 * time.Millisecond)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.True(t, got.LastActivity().After(before))
}

func TestGetExpiredSessionReturnsExpiredAndRemoves(t *testing.T) {
	m := newTestManager(t, 0, 10*time.Millisecond)
	s, err := m.Create("v")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound, "expired session should be removed on first detection")
}

func TestDeleteRemovesSession(t *testing.T) {
	m := newTestManager(t, 0, 0)
	s, err := m.Create("v")
	require.NoError(t, err)

	m.Delete(s.ID)
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCountReflectsLiveSessions(t *testing.T) {
	m := newTestManager(t, 0, 0)
	assert.Equal(t, 0, m.Count())
	_, err := m.Create("v")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count())
}
