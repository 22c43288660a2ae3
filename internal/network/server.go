// Package network keeps track of connected clients and provides methods for
// sending and receiving data over a transport.Host.
//
// Every connected client gets a ClientID. The Server must be polled once per
// tick: connect, receive and disconnect events are only observed inside Poll.
package network

import (
	"go.uber.org/zap"

	"github.com/LemmyAI/peerhost/internal/transport"
)

// Packet is a payload received since the previous poll.
type Packet struct {
	From ClientID
	Data []byte
}

// Size returns the payload length in bytes.
func (p Packet) Size() int {
	return len(p.Data)
}

// Server pumps host events into the registry and dispatches sends by client id.
type Server struct {
	host     transport.Host
	registry *Registry
	log      *zap.Logger
}

// NewServer wraps an already bound host.
func NewServer(host transport.Host, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("network")
	return &Server{
		host:     host,
		registry: NewRegistry(log),
		log:      log,
	}
}

// OnConnect sets the callback for new clients.
func (s *Server) OnConnect(handler ConnectHandler) {
	s.registry.OnConnect(handler)
}

// OnDisconnect sets the callback for departed clients.
func (s *Server) OnDisconnect(handler DisconnectHandler) {
	s.registry.OnDisconnect(handler)
}

// Poll drains every event the host has buffered and returns the packets
// received since the last call. It never waits for new events.
func (s *Server) Poll() []Packet {
	var packets []Packet

	for {
		ev, ok := s.host.Service()
		if !ok {
			return packets
		}

		switch ev.Type {
		case transport.EventConnect:
			s.log.Info("client connected", zap.String("addr", ev.Peer.Addr()))
			if s.registry.Register(ev.Peer) == NoClient {
				ev.Peer.Disconnect()
			}

		case transport.EventReceive:
			from, known := s.registry.Lookup(ev.Peer)
			if !known {
				from = NoClient
			}
			s.log.Debug("packet received",
				zap.Uint32("client", uint32(from)),
				zap.Int("size", len(ev.Data)),
			)
			packets = append(packets, Packet{From: from, Data: ev.Data})

		case transport.EventDisconnect:
			s.log.Info("client disconnected", zap.String("addr", ev.Peer.Addr()))
			s.registry.Unregister(ev.Peer)
		}
	}
}

// Send hands data to the client's peer and flushes the host.
// Unknown or stale ids are ignored.
func (s *Server) Send(id ClientID, data []byte, reliable bool) {
	peer, ok := s.registry.Resolve(id)
	if !ok {
		return
	}

	s.log.Debug("sending packet",
		zap.Uint32("client", uint32(id)),
		zap.Int("size", len(data)),
		zap.Bool("reliable", reliable),
	)
	s.send(id, peer, data, reliable)
	s.host.Flush()
}

// ReliableSend sends data to one client with guaranteed, ordered delivery.
func (s *Server) ReliableSend(id ClientID, data []byte) {
	s.Send(id, data, true)
}

// UnreliableSend sends data to one client without delivery guarantees.
func (s *Server) UnreliableSend(id ClientID, data []byte) {
	s.Send(id, data, false)
}

// Broadcast sends data to every connected client and flushes once.
func (s *Server) Broadcast(data []byte, reliable bool) {
	s.broadcast(data, reliable, NoClient)
}

// BroadcastExcept sends data to every connected client but exclude.
func (s *Server) BroadcastExcept(data []byte, reliable bool, exclude ClientID) {
	s.broadcast(data, reliable, exclude)
}

// ReliableBroadcast sends data reliably to every connected client.
func (s *Server) ReliableBroadcast(data []byte) {
	s.Broadcast(data, true)
}

// UnreliableBroadcast sends data unreliably to every connected client.
func (s *Server) UnreliableBroadcast(data []byte) {
	s.Broadcast(data, false)
}

// ReliableBroadcastExcept sends data reliably to everyone but exclude.
func (s *Server) ReliableBroadcastExcept(data []byte, exclude ClientID) {
	s.BroadcastExcept(data, true, exclude)
}

func (s *Server) broadcast(data []byte, reliable bool, exclude ClientID) {
	for _, id := range s.registry.IDs() {
		if id == exclude {
			continue
		}
		peer, _ := s.registry.Resolve(id)
		s.send(id, peer, data, reliable)
	}
	s.host.Flush()
}

func (s *Server) send(id ClientID, peer transport.Peer, data []byte, reliable bool) {
	if err := peer.Send(data, reliable); err != nil {
		s.log.Warn("send failed",
			zap.Uint32("client", uint32(id)),
			zap.String("addr", peer.Addr()),
			zap.Error(err),
		)
	}
}

// Disconnect asks the client's peer to close. The id stays registered
// until the disconnect event arrives on a later Poll.
func (s *Server) Disconnect(id ClientID) {
	peer, ok := s.registry.Resolve(id)
	if !ok {
		return
	}
	peer.Disconnect()
	s.host.Flush()
}

// ConnectedClientIDs returns the ids of all connected clients in ascending order.
func (s *Server) ConnectedClientIDs() []ClientID {
	return s.registry.IDs()
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return s.registry.Len()
}

// LocalAddr returns the host's bound address.
func (s *Server) LocalAddr() string {
	return s.host.LocalAddr()
}

// Close shuts down the host.
func (s *Server) Close() error {
	return s.host.Close()
}
