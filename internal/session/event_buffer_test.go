package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	b := NewEventBuffer(10)
	b.BindSessionID("sess-1")

	e1 := b.Append("message", []byte(`"a"`))
	e2 := b.Append("message", []byte(`"b"`))

	assert.Equal(t, "sess-1-1", e1.ID)
	assert.Equal(t, "sess-1-2", e2.ID)
}

func TestReplayAfterReturnsOnlyNewerEvents(t *testing.T) {
	b := NewEventBuffer(10)
	b.BindSessionID("s")
	e1 := b.Append("session_ready", nil)
	e2 := b.Append("message", nil)

	replay, ok := b.ReplayAfter(e1.ID)
	require.True(t, ok)
	require.Len(t, replay, 1)
	assert.Equal(t, e2.ID, replay[0].ID)
}

func TestReplayAfterEmptyLastEventIDReturnsEverything(t *testing.T) {
	b := NewEventBuffer(10)
	b.BindSessionID("s")
	b.Append("session_ready", nil)
	b.Append("message", nil)

	replay, ok := b.ReplayAfter("")
	require.True(t, ok)
	assert.Len(t, replay, 2)
}

func TestReplayAfterStaleIDBeforeRetentionWindowFails(t *testing.T) {
	b := NewEventBuffer(2)
	b.BindSessionID("s")
	e1 := b.Append("message", nil)
	b.Append("message", nil)
	b.Append("message", nil) // evicts e1
	b.Append("message", nil) // evicts e1's successor too

	_, ok := b.ReplayAfter(e1.ID)
	assert.False(t, ok, "a gap of evicted entries between the requested id and the oldest retained one must fail")
}

func TestEvictionKeepsRingAtCapacity(t *testing.T) {
	b := NewEventBuffer(2)
	b.BindSessionID("s")
	b.Append("message", nil)
	b.Append("message", nil)
	last := b.Append("message", nil)

	replay, ok := b.ReplayAfter("")
	require.True(t, ok)
	require.Len(t, replay, 2)
	assert.Equal(t, last.ID, replay[len(replay)-1].ID)
}

func TestEventIDsWithoutSessionIDAreBareCounters(t *testing.T) {
	b := NewEventBuffer(10)
	e := b.Append("message", nil)
	assert.Equal(t, "1", e.ID)
}
