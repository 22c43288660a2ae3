package network

import (
	"sort"

	"go.uber.org/zap"

	"github.com/LemmyAI/peerhost/internal/transport"
)

// ClientID identifies a connected peer for the lifetime of the process.
// IDs are handed out in connect order starting at 0 and never reused.
type ClientID uint32

// NoClient marks a packet whose sender is not in the registry.
const NoClient = ClientID(^uint32(0))

// ConnectHandler is called with the id of a newly registered peer.
type ConnectHandler func(id ClientID)

// DisconnectHandler is called with the id freed by a disconnect.
type DisconnectHandler func(id ClientID)

// Registry maps client ids to peer handles and back.
// It is not safe for concurrent use; the tick goroutine owns it.
type Registry struct {
	next  ClientID
	peers map[ClientID]transport.Peer
	ids   map[transport.Peer]ClientID
	log   *zap.Logger

	onConnect    ConnectHandler
	onDisconnect DisconnectHandler
}

// NewRegistry creates an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		peers: make(map[ClientID]transport.Peer),
		ids:   make(map[transport.Peer]ClientID),
		log:   log,
	}
}

// OnConnect sets the callback for new peers.
func (r *Registry) OnConnect(handler ConnectHandler) {
	r.onConnect = handler
}

// OnDisconnect sets the callback for departed peers.
func (r *Registry) OnDisconnect(handler DisconnectHandler) {
	r.onDisconnect = handler
}

// Register assigns the next id to peer and fires the connect callback.
// A peer that is already registered keeps its id. Once every id below
// NoClient has been handed out the peer is refused and NoClient returned.
func (r *Registry) Register(peer transport.Peer) ClientID {
	if id, ok := r.ids[peer]; ok {
		return id
	}
	if r.next == NoClient {
		r.log.Error("client ids exhausted, refusing peer", zap.String("addr", peer.Addr()))
		return NoClient
	}

	id := r.next
	r.next++
	r.peers[id] = peer
	r.ids[peer] = id

	r.log.Info("client added", zap.Uint32("client", uint32(id)), zap.String("addr", peer.Addr()))

	if r.onConnect != nil {
		r.onConnect(id)
	} else {
		r.log.Warn("connect callback is not set, skipping")
	}
	return id
}

// Unregister removes peer and fires the disconnect callback with its id.
func (r *Registry) Unregister(peer transport.Peer) (ClientID, bool) {
	id, ok := r.ids[peer]
	if !ok {
		return 0, false
	}
	delete(r.ids, peer)
	delete(r.peers, id)

	r.log.Info("client removed", zap.Uint32("client", uint32(id)), zap.String("addr", peer.Addr()))

	if r.onDisconnect != nil {
		r.onDisconnect(id)
	} else {
		r.log.Warn("disconnect callback is not set, skipping")
	}
	return id, true
}

// Resolve returns the peer registered under id.
func (r *Registry) Resolve(id ClientID) (transport.Peer, bool) {
	p, ok := r.peers[id]
	return p, ok
}

// Lookup returns the id registered for peer.
func (r *Registry) Lookup(peer transport.Peer) (ClientID, bool) {
	id, ok := r.ids[peer]
	return id, ok
}

// IDs returns the connected ids in ascending order.
func (r *Registry) IDs() []ClientID {
	ids := make([]ClientID, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of connected peers.
func (r *Registry) Len() int {
	return len(r.peers)
}
