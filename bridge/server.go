package bridge

import (
	"context"
	"net"
	"sync"

	"github.com/reactivedomain/reactivedomain/bus"
	"github.com/reactivedomain/reactivedomain/messaging"
	"github.com/reactivedomain/reactivedomain/metrics"
	"github.com/reactivedomain/reactivedomain/telemetry"
)

// Server accepts inbound bridge connections and relays between them and a
// local bus.Bus: commands arriving over the wire are dispatched locally and
// their CommandResponse written back to the originating connection; events
// published locally are forwarded to every connected peer except the one
// that the event itself arrived from.
type Server struct {
	Bus         bus.Bus
	Serializers *SerializerRegistry

	mu          sync.Mutex
	connections map[uint64]*connection
	nextConnID  uint64
	pending     map[messaging.MsgId]uint64 // command id -> owning connection id
	unsubscribe bus.Unsubscribe
}

// NewServer returns a Server relaying between appBus and connections
// accepted by Listen, encoding wire messages with serializers.
func NewServer(appBus bus.Bus, serializers *SerializerRegistry) *Server {
	return &Server{
		Bus:         appBus,
		Serializers: serializers,
		connections: make(map[uint64]*connection),
		pending:     make(map[messaging.MsgId]uint64),
	}
}

// Listen accepts connections on addr until ctx is canceled.
func (s *Server) Listen(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.unsubscribe = s.Bus.SubscribeAll(s.forwardEvent)

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	logger := telemetry.WithComponent("bridge.server")
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logger.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		s.handleAccepted(ctx, conn)
	}
}

func (s *Server) handleAccepted(ctx context.Context, netConn net.Conn) {
	s.mu.Lock()
	id := s.nextConnID
	s.nextConnID++
	c := newConnection(id, netConn)
	s.connections[id] = c
	s.mu.Unlock()
	metrics.SetBridgeConnections("server", len(s.connections))

	go c.sendLoop()
	go s.receiveLoop(ctx, c)
}

func (s *Server) removeConnection(id uint64) {
	s.mu.Lock()
	delete(s.connections, id)
	for cmdID, owner := range s.pending {
		if owner == id {
			delete(s.pending, cmdID)
		}
	}
	s.mu.Unlock()
	metrics.SetBridgeConnections("server", len(s.connections))
}

func (s *Server) receiveLoop(ctx context.Context, c *connection) {
	logger := telemetry.WithComponent("bridge.server")
	defer func() {
		c.close()
		s.removeConnection(c.id)
	}()

	reader := NewFrameReader(c.conn)
	for {
		raw, err := reader.Next()
		if err != nil {
			return
		}
		metrics.RecordBridgeFrame("server", "in")

		msg, resp, err := decodeFrame(s.Serializers, raw)
		if err != nil {
			logger.Warn().Err(err).Msg("decode failed")
			continue
		}
		if resp != nil {
			// A peer acting as a command sender returning a response to a
			// command this server originated: not part of the inbound
			// command-dispatch path, so it's just dropped; this server
			// role only originates responses, never consumes them.
			continue
		}

		c.markSeen(msg.MsgId())

		if cmd, ok := msg.(messaging.Command); ok {
			s.dispatchCommand(ctx, c, cmd)
			continue
		}
		if event, ok := msg.(messaging.Event); ok {
			s.Bus.Publish(event)
		}
	}
}

func (s *Server) dispatchCommand(ctx context.Context, c *connection, cmd messaging.Command) {
	s.mu.Lock()
	s.pending[cmd.MsgId()] = c.id
	s.mu.Unlock()

	respCh := s.Bus.TrySendAsync(cmd)
	go func() {
		resp := <-respCh
		s.mu.Lock()
		ownerID, ok := s.pending[resp.SourceCommandId]
		delete(s.pending, resp.SourceCommandId)
		owner := s.connections[ownerID]
		s.mu.Unlock()
		if !ok || owner == nil {
			return
		}
		frame, err := encodeResponseFrame(resp)
		if err != nil {
			return
		}
		owner.enqueue(frame)
		metrics.RecordBridgeFrame("server", "out")
	}()
}

// forwardEvent is the server's outbound handler: every event published on
// the local bus is relayed to every connected peer except whichever one it
// just arrived from, suppressing the echo loop SeenFromTcp exists for.
func (s *Server) forwardEvent(event messaging.Event) {
	frame, err := encodeMessageFrame(s.Serializers, event)
	if err != nil {
		return
	}

	s.mu.Lock()
	conns := make([]*connection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if c.hasSeen(event.MsgId()) {
			continue
		}
		if c.enqueue(frame) {
			metrics.RecordBridgeFrame("server", "out")
		}
	}
}

// ConnectionCount reports the number of currently connected peers.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

// Close stops forwarding events and closes every connection this server
// accepted. Listen's accept loop still needs its ctx canceled separately.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.mu.Lock()
	conns := make([]*connection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}
