package bridge

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/reactivedomain/reactivedomain/bus"
	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/metrics"
	"github.com/reactivedomain/reactivedomain/rderrors"
	"github.com/reactivedomain/reactivedomain/telemetry"
)

// Client maintains a single outbound bridge connection to a Server,
// reconnecting on failure. Grounded on socialcard/client.go's doRequest
// retry loop, generalized from one-shot HTTP requests to a long-lived
// connection that keeps redialing for the life of the Client.
type Client struct {
	Bus         bus.Bus
	Serializers *SerializerRegistry
	Addr        string

	reconnectLimiter *rate.Limiter

	mu          sync.Mutex
	conn        *connection
	unsubscribe bus.Unsubscribe
	pending     map[messaging.MsgId]chan messaging.CommandResponse
}

// NewClient returns a Client that dials addr once Run is called, relaying
// between appBus and the connection using serializers for the wire codec.
func NewClient(appBus bus.Bus, serializers *SerializerRegistry, addr string) *Client {
	return &Client{
		Bus:              appBus,
		Serializers:      serializers,
		Addr:             addr,
		reconnectLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		pending:          make(map[messaging.MsgId]chan messaging.CommandResponse),
	}
}

// Run dials Addr and services the connection until ctx is canceled,
// redialing with reconnectLimiter pacing every attempt after a drop.
func (c *Client) Run(ctx context.Context) error {
	logger := telemetry.WithComponent("bridge.client")
	c.unsubscribe = c.Bus.SubscribeAll(c.forwardEvent)
	defer func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.reconnectLimiter.Wait(ctx); err != nil {
			return ctx.Err()
		}

		netConn, err := net.Dial("tcp", c.Addr)
		if err != nil {
			logger.Debug().Err(err).Str("addr", c.Addr).Msg("dial failed, retrying")
			continue
		}

		conn := newConnection(0, netConn)
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		metrics.SetBridgeConnections("client", 1)

		go conn.sendLoop()
		c.receiveLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		metrics.SetBridgeConnections("client", 0)
		conn.close()
	}
}

func (c *Client) receiveLoop(ctx context.Context, conn *connection) {
	logger := telemetry.WithComponent("bridge.client")
	reader := NewFrameReader(conn.conn)
	for {
		raw, err := reader.Next()
		if err != nil {
			return
		}
		metrics.RecordBridgeFrame("client", "in")

		msg, resp, err := decodeFrame(c.Serializers, raw)
		if err != nil {
			logger.Warn().Err(err).Msg("decode failed")
			continue
		}

		if resp != nil {
			c.mu.Lock()
			ch, ok := c.pending[resp.SourceCommandId]
			delete(c.pending, resp.SourceCommandId)
			c.mu.Unlock()
			if ok {
				ch <- *resp
				close(ch)
			}
			continue
		}

		conn.markSeen(msg.MsgId())
		if event, ok := msg.(messaging.Event); ok {
			c.Bus.Publish(event)
		}
	}
}

// SendCommand writes cmd to the bridge and blocks until a response arrives
// or ctx is done. It fails with rderrors.KindDisconnected if the client has
// no live connection.
func (c *Client) SendCommand(ctx context.Context, cmd messaging.Command) (messaging.CommandResponse, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return messaging.CommandResponse{}, rderrors.Disconnected("bridge.Client.SendCommand")
	}
	ch := make(chan messaging.CommandResponse, 1)
	c.pending[cmd.MsgId()] = ch
	c.mu.Unlock()

	frame, err := encodeMessageFrame(c.Serializers, cmd)
	if err != nil {
		c.mu.Lock()
		delete(c.pending, cmd.MsgId())
		c.mu.Unlock()
		return messaging.CommandResponse{}, err
	}
	if !conn.enqueue(frame) {
		c.mu.Lock()
		delete(c.pending, cmd.MsgId())
		c.mu.Unlock()
		return messaging.CommandResponse{}, rderrors.Disconnected("bridge.Client.SendCommand: send channel full")
	}
	metrics.RecordBridgeFrame("client", "out")

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, cmd.MsgId())
		c.mu.Unlock()
		return messaging.CommandResponse{}, ctx.Err()
	}
}

// forwardEvent relays a locally published event to the server, unless the
// connection is down (dropped with a debug log, since a disconnected
// outbound handler has nowhere to send) or the event just arrived from this
// same connection.
func (c *Client) forwardEvent(event messaging.Event) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		telemetry.WithComponent("bridge.client").Debug().Msg("not connected, dropping outbound event")
		return
	}
	if conn.hasSeen(event.MsgId()) {
		return
	}

	frame, err := encodeMessageFrame(c.Serializers, event)
	if err != nil {
		return
	}
	if conn.enqueue(frame) {
		metrics.RecordBridgeFrame("client", "out")
	}
}
