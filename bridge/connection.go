package bridge

import (
	"encoding/json"
	"net"
	"sync"

	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/rderrors"
)

type frameKind string

const (
	frameKindMessage  frameKind = "message"
	frameKindResponse frameKind = "response"
)

type wireFrame struct {
	Kind    frameKind       `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

type wireResponse struct {
	SourceCommandId messaging.MsgId `json:"sourceCommandId"`
	Success         bool            `json:"success"`
	FailureKind     rderrors.Kind   `json:"failureKind,omitempty"`
	Error           string          `json:"error,omitempty"`
}

func encodeMessageFrame(serializers *SerializerRegistry, msg messaging.Message) ([]byte, error) {
	payload, err := serializers.Encode(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireFrame{Kind: frameKindMessage, Payload: payload})
}

func encodeResponseFrame(resp messaging.CommandResponse) ([]byte, error) {
	wr := wireResponse{SourceCommandId: resp.SourceCommandId, Success: resp.Success(), FailureKind: resp.FailureKind}
	if resp.Err != nil {
		wr.Error = resp.Err.Error()
	}
	payload, err := json.Marshal(wr)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireFrame{Kind: frameKindResponse, Payload: payload})
}

func decodeFrame(serializers *SerializerRegistry, raw []byte) (messaging.Message, *messaging.CommandResponse, error) {
	var wf wireFrame
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, nil, rderrors.DeserializationFailure("bridge.decodeFrame: envelope", err)
	}
	switch wf.Kind {
	case frameKindResponse:
		var wr wireResponse
		if err := json.Unmarshal(wf.Payload, &wr); err != nil {
			return nil, nil, rderrors.DeserializationFailure("bridge.decodeFrame: response", err)
		}
		resp := messaging.CommandResponse{SourceCommandId: wr.SourceCommandId}
		if wr.Success {
			resp = messaging.Succeed(wr.SourceCommandId)
		} else {
			var cause error
			if wr.Error != "" {
				cause = rderrors.New(wr.FailureKind, "", nil)
			}
			resp = messaging.Fail(wr.SourceCommandId, wr.FailureKind, cause)
		}
		return nil, &resp, nil
	default:
		msg, err := serializers.Decode(wf.Payload)
		if err != nil {
			return nil, nil, err
		}
		return msg, nil, nil
	}
}

// connection wraps one accepted or dialed net.Conn: a buffered outbound send
// channel (so every writer enqueues rather than writing net.Conn directly,
// serializing writes the way §5 requires) and the SeenFromTcp set loop
// suppression checks against.
type connection struct {
	id   uint64
	conn net.Conn

	sendCh chan []byte
	done   chan struct{}

	mu     sync.Mutex
	seen   map[messaging.MsgId]struct{}
	closed bool
}

func newConnection(id uint64, conn net.Conn) *connection {
	return &connection{
		id:     id,
		conn:   conn,
		sendCh: make(chan []byte, 256),
		done:   make(chan struct{}),
		seen:   make(map[messaging.MsgId]struct{}),
	}
}

// markSeen records id as having arrived from this connection's peer, so the
// outbound forwarder for this connection can suppress echoing it straight
// back.
func (c *connection) markSeen(id messaging.MsgId) {
	c.mu.Lock()
	c.seen[id] = struct{}{}
	c.mu.Unlock()
}

func (c *connection) hasSeen(id messaging.MsgId) bool {
	c.mu.Lock()
	_, ok := c.seen[id]
	c.mu.Unlock()
	return ok
}

// enqueue queues a frame for writing. It never blocks on a full connection:
// when the send channel is full the frame is dropped and enqueue returns
// false, rather than stalling every other sender on the process-wide bus.
// The connection itself stays open.
func (c *connection) enqueue(frame []byte) bool {
	select {
	case c.sendCh <- frame:
		return true
	default:
		return false
	}
}

func (c *connection) sendLoop() {
	for {
		select {
		case frame, ok := <-c.sendCh:
			if !ok {
				return
			}
			if err := WriteFrame(c.conn, frame); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *connection) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
	_ = c.conn.Close()
}
