// Package enet implements transport.Host on top of the ENet reliable-UDP
// library. Unlike the other backends it has no goroutines: Service calls
// enet_host_service with a zero timeout on the caller's goroutine.
package enet

import (
	"fmt"
	"sync"

	goenet "github.com/codecat/go-enet"
	"go.uber.org/zap"

	"github.com/LemmyAI/peerhost/internal/transport"
)

// channel carries every packet; the second allocated channel is left for callers
// that talk to the library directly.
const channel uint8 = 0

var (
	refMu sync.Mutex
	refs  int
)

// initialize brings up the ENet library once per process.
func initialize() {
	refMu.Lock()
	defer refMu.Unlock()
	if refs == 0 {
		goenet.Initialize()
	}
	refs++
}

func deinitialize() {
	refMu.Lock()
	defer refMu.Unlock()
	refs--
	if refs == 0 {
		goenet.Deinitialize()
	}
}

// Host implements transport.Host using an ENet host.
type Host struct {
	config transport.Config
	host   goenet.Host
	log    *zap.Logger

	// go-enet hands out a fresh wrapper per event, so peers are tracked by address.
	peers map[string]*peer
	// Events picked up while flushing, returned by Service before the host is serviced again.
	pending []transport.Event
	closed  bool
}

type peer struct {
	host *Host
	enet goenet.Peer
	addr string
}

// Listen initializes ENet and creates a server host bound to any address on cfg.Port.
func Listen(cfg transport.Config, log *zap.Logger) (*Host, error) {
	if log == nil {
		log = zap.NewNop()
	}

	initialize()

	addr := goenet.NewListenAddress(cfg.Port)
	if cfg.Host != "" {
		addr.SetHost(cfg.Host)
	}

	host, err := goenet.NewHost(addr, uint64(cfg.MaxPeers), uint64(cfg.Channels), 0, 0)
	if err != nil {
		deinitialize()
		return nil, fmt.Errorf("create enet host: %w", err)
	}

	return &Host{
		config: cfg,
		host:   host,
		log:    log.Named("enet"),
		peers:  make(map[string]*peer),
	}, nil
}

// Service returns the next event without waiting, servicing the ENet host
// when nothing is pending from a previous flush.
func (h *Host) Service() (transport.Event, bool) {
	if h.closed {
		return transport.Event{}, false
	}
	if len(h.pending) > 0 {
		ev := h.pending[0]
		h.pending = h.pending[1:]
		return ev, true
	}

	for {
		ev := h.host.Service(0)
		if ev.GetType() == goenet.EventNone {
			return transport.Event{}, false
		}
		if out, ok := h.translate(ev); ok {
			return out, true
		}
	}
}

// translate converts a library event, copying and releasing received packets.
// Disconnects for peers whose connect was never seen are dropped.
func (h *Host) translate(ev goenet.Event) (transport.Event, bool) {
	switch ev.GetType() {
	case goenet.EventConnect:
		p := h.track(ev.GetPeer())
		return transport.Event{Type: transport.EventConnect, Peer: p}, true

	case goenet.EventReceive:
		packet := ev.GetPacket()
		// Copy out before the packet is destroyed
		src := packet.GetData()
		data := make([]byte, len(src))
		copy(data, src)
		packet.Destroy()

		p := h.track(ev.GetPeer())
		return transport.Event{Type: transport.EventReceive, Peer: p, Data: data}, true

	case goenet.EventDisconnect:
		key := ev.GetPeer().GetAddress().String()
		p, ok := h.peers[key]
		if !ok {
			return transport.Event{}, false
		}
		delete(h.peers, key)
		return transport.Event{Type: transport.EventDisconnect, Peer: p}, true
	}
	return transport.Event{}, false
}

func (h *Host) track(ep goenet.Peer) *peer {
	key := ep.GetAddress().String()
	if p, ok := h.peers[key]; ok {
		return p
	}
	p := &peer{host: h, enet: ep, addr: key}
	h.peers[key] = p
	return p
}

// Flush sends all queued packets immediately. go-enet does not expose
// enet_host_flush, so the host is serviced with a zero timeout until it
// reports no event: enet_host_service returns early while it has incoming
// events to dispatch, and only the call that finds none is sure to have sent
// the outgoing commands. Events seen on the way are kept for Service.
func (h *Host) Flush() {
	if h.closed {
		return
	}
	for {
		ev := h.host.Service(0)
		if ev.GetType() == goenet.EventNone {
			return
		}
		if out, ok := h.translate(ev); ok {
			h.pending = append(h.pending, out)
		}
	}
}

// Close destroys the host and releases the library.
func (h *Host) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.host.Destroy()
	h.peers = nil
	h.pending = nil
	deinitialize()
	return nil
}

// LocalAddr returns the configured bind address.
func (h *Host) LocalAddr() string {
	return h.config.Addr()
}

// Send queues data on channel 0.
func (p *peer) Send(data []byte, reliable bool) error {
	if p.host.closed {
		return transport.ErrClosed
	}
	if err := p.enet.SendBytes(data, channel, packetFlags(reliable)); err != nil {
		return fmt.Errorf("enet send: %w", err)
	}
	return nil
}

// Disconnect requests a graceful disconnect.
func (p *peer) Disconnect() {
	if p.host.closed {
		return
	}
	p.enet.Disconnect(0)
}

// Addr returns the remote address.
func (p *peer) Addr() string {
	return p.addr
}

func packetFlags(reliable bool) goenet.PacketFlags {
	if reliable {
		return goenet.PacketFlagReliable
	}
	return goenet.PacketFlags(0)
}
