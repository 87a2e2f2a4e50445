package jsonrpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBufferSplitsOnNewlineAndStripsCR(t *testing.T) {
	var b ReadBuffer
	b.Append([]byte("{\"jsonrpc\":\"2.0\",\"method\":\"ping\"}\r\n"))

	msg, err := b.ReadMessage()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, KindNotification, msg.Kind)
	assert.Equal(t, "ping", msg.Notification.Method)
}

func TestReadBufferReturnsNilUntilNewlineArrives(t *testing.T) {
	var b ReadBuffer
	b.Append([]byte(`{"jsonrpc":"2.0","method":"ping"}`))

	msg, err := b.ReadMessage()
	require.NoError(t, err)
	assert.Nil(t, msg)

	b.Append([]byte("\n"))
	msg, err = b.ReadMessage()
	require.NoError(t, err)
	require.NotNil(t, msg)
}

func TestReadBufferHandlesMultipleMessagesInOneChunk(t *testing.T) {
	var b ReadBuffer
	b.Append([]byte("{\"jsonrpc\":\"2.0\",\"method\":\"a\"}\n{\"jsonrpc\":\"2.0\",\"method\":\"b\"}\n"))

	first, err := b.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "a", first.Notification.Method)

	second, err := b.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "b", second.Notification.Method)

	third, err := b.ReadMessage()
	require.NoError(t, err)
	assert.Nil(t, third)
}

func TestReadBufferFailsOnMalformedJSON(t *testing.T) {
	var b ReadBuffer
	b.Append([]byte("not json\n"))
	_, err := b.ReadMessage()
	assert.Error(t, err)
}

func TestSerializeMessageAppendsNewline(t *testing.T) {
	m := &Message{Kind: KindNotification, Notification: &Notification{Method: "ping"}}
	data, err := SerializeMessage(m)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1])
}

func TestClearDiscardsPartialBuffer(t *testing.T) {
	var b ReadBuffer
	b.Append([]byte(`{"jsonrpc":"2.0"`))
	b.Clear()
	b.Append([]byte(`,"method":"ping"}` + "\n"))
	msg, err := b.ReadMessage()
	require.Error(t, err)
	assert.Nil(t, msg)
}
