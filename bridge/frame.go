// Package bridge carries messages between two processes over a plain TCP
// socket, framed the same way the teacher's HTTPClient carries EventStoreDB
// payloads over HTTP — a length-prefixed body instead of HTTP's
// Content-Length header, since this module has no HTTP transport of its
// own to piggyback on (§8 calls for a raw socket, not a REST endpoint).
// Connection lifecycle (reconnect-with-backoff, command/response correlation
// by command id) is
// grounded on internal/federation/gateway.Gateway's request/response
// correlation idiom and internal/shared/events.HTTPClient's
// dial-retry-and-serialize-writes pattern.
package bridge

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/reactivedomain/reactivedomain/rderrors"
)

// MaxFrameBytes bounds a single frame's declared payload length.
// FrameReader.Next rejects anything larger with rderrors.ErrInvalidFrame,
// leaving the decision to close the connection to the caller (§4.8).
const MaxFrameBytes = 64 << 20

// Envelope is the JSON payload carried inside one frame: a registered
// message's short type name plus its serialized body.
type Envelope struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// WriteFrame writes payload to w as a [4-byte LE length][payload] frame.
func WriteFrame(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return rderrors.Framing("bridge.WriteFrame: header", err)
	}
	if _, err := w.Write(payload); err != nil {
		return rderrors.Framing("bridge.WriteFrame: payload", err)
	}
	return nil
}

// FrameReader accumulates bytes from an underlying reader and yields
// complete frames.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps r for frame-at-a-time reading.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// Next blocks until one full frame has arrived and returns its payload.
// A declared length greater than MaxFrameBytes is reported as
// rderrors.ErrInvalidFrame without consuming the rest of the stream; the
// connection is no longer trustworthy at that point and the caller is
// expected to close it.
func (f *FrameReader) Next() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(f.r, header[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(header[:])
	if length > MaxFrameBytes {
		return nil, rderrors.InvalidFrame("bridge.FrameReader.Next: declared length exceeds MaxFrameBytes", nil)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(f.r, payload); err != nil {
		return nil, rderrors.Framing("bridge.FrameReader.Next: payload", err)
	}
	return payload, nil
}
