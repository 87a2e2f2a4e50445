package jsonrpc

import (
	"bytes"
	"fmt"
)

// ReadBuffer accumulates raw bytes from a stream transport (stdio, legacy
// SSE POST bodies) and yields complete newline-delimited messages as they
// appear. Grounded on the original Rust ReadBuffer: find the first '\n',
// strip an immediately preceding '\r', parse the slice, then drain through
// the newline inclusive.
type ReadBuffer struct {
	buf []byte
}

// Append adds a chunk of bytes read from the transport.
func (b *ReadBuffer) Append(chunk []byte) {
	b.buf = append(b.buf, chunk...)
}

// ReadMessage extracts and decodes the next complete message in the
// buffer, if any. It returns (nil, nil) when no full line is buffered yet.
func (b *ReadBuffer) ReadMessage() (*Message, error) {
	idx := bytes.IndexByte(b.buf, '\n')
	if idx < 0 {
		return nil, nil
	}

	line := b.buf[:idx]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	b.buf = b.buf[idx+1:]

	if len(bytes.TrimSpace(line)) == 0 {
		return b.ReadMessage()
	}

	msg, err := Decode(line)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: read buffer: %w", err)
	}
	return msg, nil
}

// Clear discards any partially-buffered bytes.
func (b *ReadBuffer) Clear() {
	b.buf = nil
}

// SerializeMessage encodes a message and appends the newline terminator
// required by the stdio/legacy-stream framing.
func SerializeMessage(m *Message) ([]byte, error) {
	data, err := Encode(m)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
